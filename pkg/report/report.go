package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"watchgraph/pkg/graph"
	"watchgraph/pkg/logger"
	"watchgraph/pkg/store"
)

// LabelsHeader is the first row of the labels file
var LabelsHeader = []string{"Id", "Total Watchlist Count"}

// Writer writes the edge and label tables consumed by graph tools
type Writer struct {
	edgesPath   string
	labelsPath  string
	appendEdges bool
	logger      logger.Logger
}

// NewWriter creates a report writer. With appendEdges the edges file keeps
// rows from earlier runs; otherwise it is truncated.
func NewWriter(edgesPath, labelsPath string, appendEdges bool, log logger.Logger) *Writer {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Writer{
		edgesPath:   edgesPath,
		labelsPath:  labelsPath,
		appendEdges: appendEdges,
		logger:      log,
	}
}

// EdgesPath returns the edges file path
func (w *Writer) EdgesPath() string {
	return w.edgesPath
}

// LabelsPath returns the labels file path
func (w *Writer) LabelsPath() string {
	return w.labelsPath
}

// WriteEdges writes one headerless usernameA,usernameB,count row per pair
func (w *Writer) WriteEdges(counts *graph.SharedCounts) error {
	flags := os.O_CREATE | os.O_WRONLY
	if w.appendEdges {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}

	file, err := openFile(w.edgesPath, flags)
	if err != nil {
		return fmt.Errorf("failed to open edges file: %w", err)
	}
	defer file.Close()

	cw := csv.NewWriter(file)
	rows := 0
	if counts != nil {
		for _, p := range counts.Pairs() {
			if err := cw.Write([]string{p.A, p.B, strconv.Itoa(p.Count)}); err != nil {
				return fmt.Errorf("failed to write edge %s,%s: %w", p.A, p.B, err)
			}
			rows++
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush edges file: %w", err)
	}

	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close edges file: %w", err)
	}

	w.logger.InfoWithFields("Edges written", map[string]interface{}{
		"path":   w.edgesPath,
		"rows":   rows,
		"append": w.appendEdges,
	})
	return nil
}

// WriteLabels replaces the labels file with the header and one row per user
func (w *Writer) WriteLabels(sizes []graph.UserSize) error {
	file, err := openFile(w.labelsPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC)
	if err != nil {
		return fmt.Errorf("failed to open labels file: %w", err)
	}
	defer file.Close()

	cw := csv.NewWriter(file)
	if err := cw.Write(LabelsHeader); err != nil {
		return fmt.Errorf("failed to write labels header: %w", err)
	}
	for _, s := range sizes {
		if err := cw.Write([]string{s.Username, strconv.Itoa(s.Count)}); err != nil {
			return fmt.Errorf("failed to write label for %s: %w", s.Username, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush labels file: %w", err)
	}

	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close labels file: %w", err)
	}

	w.logger.InfoWithFields("Labels written", map[string]interface{}{
		"path": w.labelsPath,
		"rows": len(sizes),
	})
	return nil
}

// SizesFromSnapshot reads a persisted results file and returns each user's
// watchlist size in file order
func SizesFromSnapshot(path string) ([]graph.UserSize, error) {
	results, err := store.LoadResults(path)
	if err != nil {
		return nil, err
	}
	return graph.Sizes(results), nil
}

// LabelsFromSnapshot rewrites the labels file from a persisted results file
func (w *Writer) LabelsFromSnapshot(path string) error {
	sizes, err := SizesFromSnapshot(path)
	if err != nil {
		return fmt.Errorf("failed to read labels source: %w", err)
	}
	return w.WriteLabels(sizes)
}

func openFile(path string, flags int) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, flags, 0644)
}
