package graph

import (
	"log/slog"

	"github.com/cwbaker/persist"
)

// RootName is the name of the graph's root element in every archive.
const RootName = "graph"

func Options(logger *slog.Logger) persist.Options {
	return persist.Options{Format: Format, Version: Version, Logger: logger}
}

func NewWriter(enc persist.Encoding, logger *slog.Logger) *persist.Writer {
	return persist.NewWriter(enc, Types(), Options(logger))
}

func NewReader(enc persist.Encoding, logger *slog.Logger) *persist.Reader {
	return persist.NewReader(enc, Types(), Options(logger))
}

// Write saves g to path in the encoding its extension names, or binary.
func Write(path string, g *Graph, logger *slog.Logger) error {
	return NewWriter(encodingFor(path), logger).Write(path, RootName, g)
}

// Read loads the graph saved at path.
func Read(path string, logger *slog.Logger) (*Graph, error) {
	g := &Graph{}
	if err := NewReader(encodingFor(path), logger).Read(path, RootName, g); err != nil {
		return nil, err
	}
	return g, nil
}

func encodingFor(path string) persist.Encoding {
	if enc, ok := persist.EncodingForPath(path); ok {
		return enc
	}
	return persist.Binary
}
