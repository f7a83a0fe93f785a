// Command storylens analyzes manuscript files from the command line:
// each file becomes one chapter, the whole set is processed, and the
// per-chapter and book-level reports are printed as JSON.
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/vampirenirmal/storylens/pkg/storylens"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: storylens <chapter.txt> [chapter2.txt ...]")
		fmt.Println("Each file is analyzed as one chapter, in argument order.")
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	cfg, err := storylens.LoadConfig()
	if err != nil {
		fmt.Printf("Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	// Batch runs have no editor to keep responsive; process inline.
	cfg.UseWorker = false

	eng, err := storylens.New(*cfg, storylens.WithLogger(logger))
	if err != nil {
		fmt.Printf("Engine startup failed: %v\n", err)
		os.Exit(1)
	}
	defer eng.Destroy()

	var chapterIDs []string
	for _, path := range os.Args[1:] {
		text, err := os.ReadFile(path)
		if err != nil {
			fmt.Printf("Reading %s: %v\n", path, err)
			os.Exit(1)
		}
		id := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		if err := eng.RegisterChapter(id, string(text)); err != nil {
			fmt.Printf("Registering %s: %v\n", id, err)
			os.Exit(1)
		}
		chapterIDs = append(chapterIDs, id)
	}

	eng.ProcessAllDirty()

	report := struct {
		Chapters map[string]chapterReport `json:"chapters"`
		Book     *storylens.ChunkAnalysis `json:"book,omitempty"`
	}{Chapters: make(map[string]chapterReport, len(chapterIDs))}

	for _, id := range chapterIDs {
		entry := chapterReport{}
		if a, err := eng.GetAggregate(storylens.LevelChapter, id); err == nil {
			entry.Analysis = &a
		}
		if arc, err := eng.ChapterArc(id); err == nil {
			entry.Arc = &arc
		}
		report.Chapters[id] = entry
	}
	if book, err := eng.GetBookSummary(); err == nil {
		report.Book = &book
	}

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		fmt.Printf("Encoding report: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}

type chapterReport struct {
	Analysis *storylens.ChunkAnalysis `json:"analysis,omitempty"`
	Arc      *storylens.ArcAnalysis   `json:"arc,omitempty"`
}
