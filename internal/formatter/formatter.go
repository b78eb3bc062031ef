// package formatter renders listening history as CSV, Markdown, JSON or plain text
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/desertthunder/recents/internal/models"
	"github.com/desertthunder/recents/internal/shared"
)

// Format is an output format accepted by [Render].
type Format string

const (
	FormatText     Format = "text"
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "md"
	FormatJSON     Format = "json"
)

// playedAtLayout is used for human-readable timestamps.
const playedAtLayout = "2006-01-02 15:04"

// ParseFormat accepts the format names and a few common aliases.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "text", "txt":
		return FormatText, nil
	case "csv":
		return FormatCSV, nil
	case "md", "markdown":
		return FormatMarkdown, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: unknown format %q (want text, csv, md or json)", shared.ErrInvalidArgument, s)
	}
}

// Extension returns the file extension for f, without the dot.
func (f Format) Extension() string {
	if f == FormatText {
		return "txt"
	}
	return string(f)
}

// Render converts plays to f. title heads the text and Markdown outputs.
func Render(f Format, title string, plays []models.Play) ([]byte, error) {
	switch f {
	case FormatCSV:
		return ExportToCSV(plays)
	case FormatMarkdown:
		return ExportToMarkdown(title, plays, "")
	case FormatJSON:
		return shared.MarshalJSON(plays, true)
	case FormatText:
		return ExportToText(title, plays)
	default:
		return nil, fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, f)
	}
}

// ExportToCSV converts plays to CSV with columns: Played At, Track ID, Title, Artists, Album, Duration, URL
func ExportToCSV(plays []models.Play) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Played At", "Track ID", "Title", "Artists", "Album", "Duration", "URL"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, p := range plays {
		record := []string{
			p.PlayedAt.Format(time.RFC3339),
			p.Track.ID,
			p.Track.Name,
			p.Track.ArtistNames(),
			p.Track.Album.Name,
			shared.FormatDuration(p.Track.DurationMS),
			p.Track.ExternalURLs.Spotify,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown converts plays to a Markdown list with an optional cover image.
func ExportToMarkdown(title string, plays []models.Play, imageFilename string) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "# %s\n\n", title)

	if imageFilename != "" {
		fmt.Fprintf(&buf, "![Cover](%s)\n\n", imageFilename)
	}

	fmt.Fprintf(&buf, "**Plays**: %d\n\n", len(plays))

	for i, p := range plays {
		name := p.Track.Name
		if url := p.Track.ExternalURLs.Spotify; url != "" {
			name = fmt.Sprintf("[%s](%s)", name, url)
		}
		albumPart := ""
		if p.Track.Album.Name != "" {
			albumPart = fmt.Sprintf(" (%s)", p.Track.Album.Name)
		}
		fmt.Fprintf(&buf, "%d. %s - %s%s [%s] · %s\n",
			i+1, p.Track.ArtistNames(), name, albumPart,
			shared.FormatDuration(p.Track.DurationMS), p.PlayedAt.Format(playedAtLayout))
	}

	return buf.Bytes(), nil
}

// ExportToText converts plays to plain text.
func ExportToText(title string, plays []models.Play) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "%s\n", title)
	fmt.Fprintf(&buf, "Plays: %d\n\n", len(plays))

	for i, p := range plays {
		fmt.Fprintf(&buf, "%d. %s - %s\n", i+1, p.Track.ArtistNames(), p.Track.Name)
		if p.Track.Album.Name != "" {
			fmt.Fprintf(&buf, "   Album: %s\n", p.Track.Album.Name)
		}
		fmt.Fprintf(&buf, "   Played: %s\n", p.PlayedAt.Format(playedAtLayout))
	}

	return buf.Bytes(), nil
}

// DownloadImage downloads an image from the given URL and returns the raw bytes
func DownloadImage(client *http.Client, url string) ([]byte, error) {
	if url == "" {
		return nil, fmt.Errorf("%w: empty image URL", shared.ErrMissingArgument)
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	resp, err := client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: status %d", resp.StatusCode)
	}

	imageData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}

	return imageData, nil
}

// MarkdownExportResult contains information about files created by WriteMarkdownExport
type MarkdownExportResult struct {
	Directory  string
	Files      []string
	CoverImage string
}

// WriteMarkdownExport writes {dir}/README.md and, when the most recent play has album art,
// {dir}/cover.jpg. A failed cover download is logged and the Markdown is written without it.
func WriteMarkdownExport(client *http.Client, title string, plays []models.Play, outputDir string) (*MarkdownExportResult, error) {
	if outputDir == "" {
		return nil, fmt.Errorf("%w: output directory", shared.ErrMissingArgument)
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	result := &MarkdownExportResult{
		Directory: outputDir,
		Files:     []string{},
	}

	var coverImageFilename string
	if len(plays) > 0 {
		if cover := plays[0].Track.Album.Cover(); cover != "" {
			coverImageFilename = writeCover(client, cover, outputDir, result)
		}
	}

	mdData, err := ExportToMarkdown(title, plays, coverImageFilename)
	if err != nil {
		return nil, fmt.Errorf("failed to generate Markdown: %w", err)
	}

	mdFile := filepath.Join(outputDir, "README.md")
	if err := os.WriteFile(mdFile, mdData, 0644); err != nil {
		return nil, fmt.Errorf("failed to write Markdown file: %w", err)
	}

	result.Files = append(result.Files, mdFile)
	return result, nil
}

func writeCover(client *http.Client, url, outputDir string, result *MarkdownExportResult) string {
	imageData, err := DownloadImage(client, url)
	if err != nil {
		shared.NewLogger(os.Stderr).Warn("failed to download cover image", "err", err)
		return ""
	}

	coverImagePath := filepath.Join(outputDir, "cover.jpg")
	if err := os.WriteFile(coverImagePath, imageData, 0644); err != nil {
		shared.NewLogger(os.Stderr).Warn("failed to save cover image", "err", err)
		return ""
	}

	result.CoverImage = coverImagePath
	result.Files = append(result.Files, coverImagePath)
	return "cover.jpg"
}

// WriteExport renders plays to f and writes the result to path.
//
// Defaults to recent_plays.{ext} when path is empty.
func WriteExport(f Format, title string, plays []models.Play, path string) (string, error) {
	if path == "" {
		path = "recent_plays." + f.Extension()
	}

	data, err := Render(f, title, plays)
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s file: %w", f, err)
	}

	return path, nil
}
