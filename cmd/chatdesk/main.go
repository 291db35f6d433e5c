package main

import (
	"flag"
	"log"
	"net/http"

	"chatdesk/internal/api"
	"chatdesk/internal/auth"
	"chatdesk/internal/config"
	"chatdesk/internal/logging"
	"chatdesk/internal/mock"
	"chatdesk/internal/storage"
	"chatdesk/internal/ui"
	"chatdesk/internal/viewer"

	tea "github.com/charmbracelet/bubbletea"
)

// mockToken signs the user in when the in-memory backend is used
const mockToken = "mock-session"

func main() {
	configPath := flag.String("config", "", "path to config.toml (default ~/.chatdesk/config.toml)")
	viewPath := flag.String("view", "", "open an exported conversations JSON file in the viewer")
	useMock := flag.Bool("mock", false, "use the in-memory backend instead of the API server")
	flag.Parse()

	var (
		cfg *config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.LoadFromPath(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		log.Fatal("Failed to load config: ", err)
	}
	if *useMock {
		cfg.API.Mock = true
	}

	logger, logFile, err := logging.OpenFile(cfg.Log.Path, cfg.Log.Level)
	if err != nil {
		log.Fatal("Failed to open log file: ", err)
	}
	defer logFile.Close()

	// Initialize local storage
	store, err := storage.Open(cfg.Storage.Driver, cfg.Storage.Path)
	if err != nil {
		log.Fatal("Failed to initialize storage: ", err)
	}
	defer store.Close()

	session, err := auth.NewSession(store)
	if err != nil {
		log.Fatal("Failed to restore session: ", err)
	}
	switch {
	case cfg.API.Token != "":
		err = session.SignIn(cfg.API.Token)
	case cfg.API.Mock && !session.SignedIn():
		err = session.SignIn(mockToken)
	}
	if err != nil {
		log.Fatal("Failed to sign in: ", err)
	}

	var backend api.Backend
	if cfg.API.Mock {
		backend = mock.New(mock.WithLogger(logger))
	} else {
		backend = api.NewClient(cfg.API.BaseURL, session,
			api.WithHTTPClient(&http.Client{Timeout: cfg.Timeout()}),
			api.WithLogger(logger),
		)
	}

	tags, err := viewer.LoadTags(viewer.NewLocalTagStore(store, logger))
	if err != nil {
		log.Fatal("Failed to load tags: ", err)
	}

	logger.Info("starting chatdesk",
		"mock", cfg.API.Mock,
		"api_url", cfg.API.BaseURL,
		"storage", cfg.Storage.Driver,
	)

	model := ui.NewModel(ui.Deps{
		Backend:    backend,
		Session:    session,
		Viewer:     viewer.New(tags),
		Logger:     logger,
		Timeout:    cfg.Timeout(),
		BulkUpload: cfg.Features.BulkUpload,
		ExportPath: *viewPath,
		Mock:       cfg.API.Mock,
	})

	// Start the application
	p := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		logger.Error("program exited", "error", err)
		log.Fatal(err)
	}
}
