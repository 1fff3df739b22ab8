package repository

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"PortDelta/internal/domain/models"
	drepo "PortDelta/internal/domain/repository"
	"PortDelta/pkg/util"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// FileLoader reads the portfolio from a CSV or YAML file chosen by extension.
//
// CSV needs a header with a Ticker (or Symbol) column and a Shares column.
// YAML is a document of the form:
//
//	holdings:
//	  - ticker: AAPL
//	    shares: 10
type FileLoader struct {
	path string
}

var _ drepo.PortfolioLoader = (*FileLoader)(nil)

func NewFileLoader(path string) *FileLoader {
	return &FileLoader{path: path}
}

func (l *FileLoader) Path() string { return l.path }

func (l *FileLoader) Load(_ context.Context) (models.Portfolio, error) {
	raw, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("read portfolio: %w", err)
	}

	var p models.Portfolio
	switch ext := strings.ToLower(filepath.Ext(l.path)); ext {
	case ".csv", ".txt":
		p, err = parseCSV(raw)
	case ".yaml", ".yml":
		p, err = parseYAML(raw)
	default:
		return nil, fmt.Errorf("portfolio %s: unsupported format %q", l.path, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("portfolio %s: %w", l.path, err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("portfolio %s: %w", l.path, err)
	}
	return p, nil
}

func parseCSV(raw []byte) (models.Portfolio, error) {
	r := csv.NewReader(bytes.NewReader(raw))
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1
	r.Comment = '#'

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("csv header: %w", err)
	}
	symCol, sharesCol := -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))) {
		case "ticker", "symbol":
			symCol = i
		case "shares", "quantity", "qty":
			sharesCol = i
		}
	}
	if symCol < 0 || sharesCol < 0 {
		return nil, fmt.Errorf("csv header must name Ticker and Shares columns, got %v", header)
	}

	var p models.Portfolio
	for line := 2; ; line++ {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		if len(rec) <= symCol || len(rec) <= sharesCol {
			return nil, fmt.Errorf("csv line %d: missing columns", line)
		}
		if strings.TrimSpace(rec[symCol]) == "" && strings.TrimSpace(rec[sharesCol]) == "" {
			continue
		}
		h, err := holding(rec[symCol], rec[sharesCol])
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		p = append(p, h)
	}
	return p, nil
}

type yamlPortfolio struct {
	Holdings []struct {
		Ticker string `yaml:"ticker"`
		Symbol string `yaml:"symbol"`
		Shares string `yaml:"shares"`
	} `yaml:"holdings"`
}

func parseYAML(raw []byte) (models.Portfolio, error) {
	var doc yamlPortfolio
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("yaml: %w", err)
	}
	p := make(models.Portfolio, 0, len(doc.Holdings))
	for i, e := range doc.Holdings {
		sym := e.Ticker
		if sym == "" {
			sym = e.Symbol
		}
		h, err := holding(sym, e.Shares)
		if err != nil {
			return nil, fmt.Errorf("holding %d: %w", i+1, err)
		}
		p = append(p, h)
	}
	return p, nil
}

func holding(symbol, shares string) (models.Holding, error) {
	sym := util.NormalizeSymbol(symbol)
	qty, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(shares), ",", ""))
	if err != nil {
		return models.Holding{}, fmt.Errorf("%s: invalid shares %q", sym, shares)
	}
	return models.Holding{Symbol: sym, Shares: qty}, nil
}
