// Command minerals-mcp is a Model Context Protocol server over stdio exposing
// critical-minerals data tools: schema detection for EDX resources, CLaiMM
// dataset discovery, and literature/statistics lookups (ArXiv, BGS world
// mineral statistics, UN Comtrade, OSTI, Google Scholar).
//
// All diagnostics go to stderr; stdout carries only the MCP session.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Redliana/critical-minerals-data-tools/internal/arxiv"
	"github.com/Redliana/critical-minerals-data-tools/internal/bgs"
	"github.com/Redliana/critical-minerals-data-tools/internal/comtrade"
	"github.com/Redliana/critical-minerals-data-tools/internal/config"
	"github.com/Redliana/critical-minerals-data-tools/internal/edx"
	"github.com/Redliana/critical-minerals-data-tools/internal/headerdetect"
	"github.com/Redliana/critical-minerals-data-tools/internal/osti"
	"github.com/Redliana/critical-minerals-data-tools/internal/scholar"
)

const serverVersion = "1.2.0"

// app bundles the clients the tool handlers share.
type app struct {
	settings config.Settings
	logger   *slog.Logger

	edx      *edx.Client // nil when no API key is configured
	detector *headerdetect.Detector
	arxiv    *arxiv.Client
	bgs      *bgs.Client
	comtrade *comtrade.Client
	scholar  *scholar.Client
	catalog  *osti.Catalog // nil when no catalog path is configured
}

func main() {
	ostiPath := flag.String("osti-data", os.Getenv("OSTI_DATA_PATH"), "Path to the OSTI document catalog (directory or JSON file)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	settings, err := config.FromEnv()
	if err != nil {
		logger.Error("configuration error", "err", err)
		os.Exit(2)
	}
	if err := settings.Validate(); err != nil {
		logger.Error("configuration error", "err", err)
		os.Exit(2)
	}

	a, err := newApp(settings, logger, *ostiPath)
	if err != nil {
		logger.Error("startup failed", "err", err)
		os.Exit(2)
	}

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "critical-minerals",
		Version: serverVersion,
	}, nil)
	a.registerTools(server)

	logger.Info("starting MCP server", "version", serverVersion, "edx", a.edx != nil, "osti_catalog", a.catalog != nil)
	if err := server.Run(context.Background(), &mcp.StdioTransport{}); err != nil {
		logger.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func newApp(settings config.Settings, logger *slog.Logger, ostiPath string) (*app, error) {
	httpc := &http.Client{Timeout: settings.HTTPTimeout}

	a := &app{
		settings: settings,
		logger:   logger,
		arxiv:    arxiv.New(arxiv.Options{UserAgent: settings.UserAgent, Client: httpc}),
		bgs:      bgs.New(bgs.Options{UserAgent: settings.UserAgent, Client: httpc}),
		comtrade: comtrade.New(comtrade.Options{APIKey: settings.ComtradeAPIKey, UserAgent: settings.UserAgent, Client: httpc}),
		scholar:  scholar.New(scholar.Options{Client: httpc}),
	}

	var header http.Header
	if settings.EDXAPIKey != "" {
		client, err := edx.New(edx.Options{
			BaseURL:   settings.EDXBaseURL,
			APIKey:    settings.EDXAPIKey,
			Group:     settings.EDXGroup,
			UserAgent: settings.UserAgent,
			Client:    httpc,
		})
		if err != nil {
			return nil, err
		}
		a.edx = client
		header = client.AuthHeader()
	} else {
		logger.Warn("EDX_API_KEY not set; EDX tools disabled")
	}

	a.detector = headerdetect.New(headerdetect.Options{
		CSVFetchBytes:   settings.CSVFetchBytes,
		SheetFetchBytes: settings.SheetFetchBytes,
		Header:          header,
		Client:          httpc,
	})

	if ostiPath != "" {
		catalog, err := osti.Load(ostiPath)
		if err != nil {
			return nil, fmt.Errorf("loading OSTI catalog: %w", err)
		}
		a.catalog = catalog
		logger.Info("OSTI catalog loaded", "documents", catalog.Len())
	}

	return a, nil
}
