// Command indexgen builds body and title indexes, posting segments and a
// title table from a JSON-lines corpus, in the layout the search service
// reads. Each input line is {"id": <uint32>, "title": "...", "body": "..."}.
//
// Output paths come from the same config file as the search service, so a
// local setup is:
//
//	go run ./cmd/indexgen -corpus docs.jsonl
//	go run ./cmd/searcher
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/dual-channel-search/internal/index"
	"github.com/Adithya-Monish-Kumar-K/dual-channel-search/internal/searcher/titles"
	"github.com/Adithya-Monish-Kumar-K/dual-channel-search/internal/searcher/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/dual-channel-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/dual-channel-search/pkg/logger"
)

type document struct {
	ID    uint32 `json:"id"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

type summary struct {
	Documents  int
	BodyTerms  int
	TitleTerms int
	Segments   int
}

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	corpus := flag.String("corpus", "", "JSON-lines corpus file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	if *corpus == "" {
		fmt.Fprintln(os.Stderr, "-corpus is required")
		os.Exit(2)
	}

	f, err := os.Open(*corpus)
	if err != nil {
		slog.Error("opening corpus failed", "error", err)
		os.Exit(1)
	}
	defer f.Close()

	docs, err := readCorpus(f)
	if err != nil {
		slog.Error("reading corpus failed", "error", err)
		os.Exit(1)
	}
	sum, err := build(cfg, docs)
	if err != nil {
		slog.Error("building index failed", "error", err)
		os.Exit(1)
	}
	slog.Info("index built",
		"documents", sum.Documents,
		"body_terms", sum.BodyTerms,
		"title_terms", sum.TitleTerms,
		"segments", sum.Segments,
	)
	if int64(sum.Documents) != cfg.Index.CollectionSize {
		slog.Warn("index.collectionSize does not match the corpus; set SP_INDEX_COLLECTION_SIZE",
			"configured", cfg.Index.CollectionSize,
			"documents", sum.Documents,
		)
	}
}

func readCorpus(r io.Reader) ([]document, error) {
	var docs []document
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var d document
		if err := json.Unmarshal(sc.Bytes(), &d); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		docs = append(docs, d)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	sort.SliceStable(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	for i := 1; i < len(docs); i++ {
		if docs[i].ID == docs[i-1].ID {
			return nil, fmt.Errorf("duplicate document id %d", docs[i].ID)
		}
	}
	return docs, nil
}

// build writes both channels and the title table to the locations named in
// cfg. Only the local postings backend is supported as a target.
func build(cfg *config.Config, docs []document) (summary, error) {
	body := index.NewBuilder("body")
	title := index.NewBuilder("title")
	table := make(map[uint32]string, len(docs))
	for _, d := range docs {
		if err := body.AddDocument(d.ID, tokenizer.Tokenize(d.Body)); err != nil {
			return summary{}, err
		}
		if err := title.AddDocument(d.ID, tokenizer.Tokenize(d.Title)); err != nil {
			return summary{}, err
		}
		table[d.ID] = d.Title
	}

	sum := summary{Documents: len(docs)}
	channels := []struct {
		builder *index.Builder
		prefix  string
		path    string
		terms   *int
	}{
		{body, cfg.Postings.BodyPrefix, cfg.Index.BodyPath, &sum.BodyTerms},
		{title, cfg.Postings.TitlePrefix, cfg.Index.TitlePath, &sum.TitleTerms},
	}
	for _, ch := range channels {
		w, err := index.NewSegmentWriter(filepath.Join(cfg.Postings.DataDir, ch.prefix), cfg.Postings.BlockSize)
		if err != nil {
			return summary{}, err
		}
		ix, err := ch.builder.Build(w)
		if err != nil {
			w.Close()
			return summary{}, err
		}
		if err := w.Close(); err != nil {
			return summary{}, err
		}
		if err := os.MkdirAll(filepath.Dir(ch.path), 0o755); err != nil {
			return summary{}, fmt.Errorf("creating index directory: %w", err)
		}
		if err := index.WriteFile(ch.path, ix); err != nil {
			return summary{}, err
		}
		*ch.terms = ix.Terms()
		sum.Segments += len(w.Segments())
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Titles.Path), 0o755); err != nil {
		return summary{}, fmt.Errorf("creating titles directory: %w", err)
	}
	if err := titles.WriteFile(cfg.Titles.Path, table); err != nil {
		return summary{}, err
	}
	return sum, nil
}
