package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"lfupload/lib/democonfigs"
	fl "lfupload/lib/filelogger"
	"lfupload/lib/formdata"
	"lfupload/lib/handler"
	"lfupload/lib/logx"
)

func main() {
	var err error
	// initialize flags
	cfgfile := flag.String("config", "", "TOML config file")
	httpbind := flag.String("httpbind", "", "http bind address (overrides config)")
	tmpdir := flag.String("tmpdir", "", "directory for uploaded files (overrides config)")
	chunk := flag.Int("chunk", 0, "read chunk size (overrides config)")
	loglevel := flag.String("loglevel", "", "log level (overrides config)")

	flag.Parse()

	cfg := democonfigs.DefaultServerCfg
	if *cfgfile != "" {
		cfg, err = democonfigs.LoadServerCfg(*cfgfile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "config error: %v\n", err)
			os.Exit(1)
		}
	}
	if *httpbind != "" {
		cfg.HTTPBind = *httpbind
	}
	if *tmpdir != "" {
		cfg.TempDir = *tmpdir
	}
	if *chunk != 0 {
		cfg.ChunkSize = *chunk
	}
	if *loglevel != "" {
		cfg.LogLevel = *loglevel
	}

	lvl, color, err := cfg.LogParams()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	// logger
	lgr, err := fl.NewFileLogger(os.Stderr, lvl, color)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fl.NewFileLogger error: %v\n", err)
		os.Exit(1)
	}
	mlg := logx.NewLogToX(lgr, "main")

	fcfg, err := cfg.FormConfig()
	if err != nil {
		mlg.LogPrintln(logx.CRITICAL, "cfg.FormConfig error:", err)
		return
	}
	fcfg.Logger = logx.NewLogToX(lgr, "formdata")

	up := &handler.Upload{
		Config: fcfg,
		Logger: logx.NewLogToX(lgr, "upload"),
		Indent: cfg.Indent,
		Process: func(r *http.Request, parts formdata.Parts) error {
			for _, p := range parts {
				if p.IsFile() {
					mlg.LogPrintf(logx.INFO, "file %q (%q): %d bytes, hash %s",
						p.Name(), p.FileName(), p.Size, p.Hash)
				} else {
					mlg.LogPrintf(logx.DEBUG, "field %q: %d bytes", p.Name(), p.Size)
				}
			}
			return nil
		},
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.Path, handler.NewMethod().Handle("POST", up))

	server := &http.Server{Addr: cfg.HTTPBind, Handler: mux}

	// graceful shutdown by signal
	killc := make(chan os.Signal, 2)
	signal.Notify(killc, os.Interrupt, syscall.SIGTERM)
	go func(c chan os.Signal) {
		for {
			s := <-c
			switch s {
			case os.Interrupt, syscall.SIGTERM:
				signal.Reset(os.Interrupt, syscall.SIGTERM)
				fmt.Fprintf(os.Stderr, "killing server\n")
				server.Shutdown(context.Background())
				return
			}
		}
	}(killc)

	mlg.LogPrintf(logx.NOTICE, "serving %s on %s, files go to %q", cfg.Path, cfg.HTTPBind, cfg.TempDir)
	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		mlg.LogPrintln(logx.ERROR, "error from ListenAndServe:", err)
	}
}
