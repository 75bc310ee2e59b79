package main

// streams form to upload server, curl style:
//   demopost -url http://127.0.0.1:1234/upload title=hi file=@big.iso

import (
	"context"
	"flag"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"golang.org/x/xerrors"

	fl "lfupload/lib/filelogger"
	"lfupload/lib/logx"
	"lfupload/lib/xdialer"
)

type formArg struct {
	name  string
	value string
	file  bool
}

func parseArgs(args []string) ([]formArg, error) {
	fa := make([]formArg, 0, len(args))
	for _, a := range args {
		k, v, ok := strings.Cut(a, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("argument %q is not name=value or name=@file", a)
		}
		if strings.HasPrefix(v, "@") {
			fa = append(fa, formArg{name: k, value: v[1:], file: true})
		} else {
			fa = append(fa, formArg{name: k, value: v})
		}
	}
	return fa, nil
}

func copyFile(mw *multipart.Writer, a formArg) error {
	f, err := os.Open(a.value)
	if err != nil {
		return err
	}
	defer f.Close()
	w, err := mw.CreateFormFile(a.name, filepath.Base(a.value))
	if err != nil {
		return err
	}
	_, err = io.Copy(w, f)
	return err
}

// writeForm encodes fields to pw, closing it with error if any.
func writeForm(pw *io.PipeWriter, mw *multipart.Writer, fa []formArg, lg logx.Logger) {
	var err error
	for _, a := range fa {
		if a.file {
			lg.LogPrintf(logx.DEBUG, "sending file %q as %q", a.value, a.name)
			err = copyFile(mw, a)
		} else {
			err = mw.WriteField(a.name, a.value)
		}
		if err != nil {
			pw.CloseWithError(xerrors.Errorf("field %q: %w", a.name, err))
			return
		}
	}
	pw.CloseWithError(mw.Close())
}

func main() {
	target := flag.String("url", "http://127.0.0.1:1234/upload", "upload URL")
	proxy := flag.String("proxy", "", "socks5://host:port proxy chain")
	loglevel := flag.String("loglevel", "info", "log level")

	flag.Parse()

	lvl, ok := logx.ParseLevel(*loglevel)
	if !ok {
		fmt.Fprintf(os.Stderr, "unrecognised log level %q\n", *loglevel)
		os.Exit(1)
	}
	lgr, err := fl.NewFileLogger(os.Stderr, lvl, fl.ColorAuto)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fl.NewFileLogger error: %v\n", err)
		os.Exit(1)
	}
	mlg := logx.NewLogToX(lgr, "main")

	fa, err := parseArgs(flag.Args())
	if err != nil {
		mlg.LogPrintln(logx.CRITICAL, err)
		os.Exit(1)
	}

	d, err := xdialer.ProxyDialer(*proxy)
	if err != nil {
		mlg.LogPrintln(logx.CRITICAL, "xdialer.ProxyDialer error:", err)
		os.Exit(1)
	}
	client := xdialer.HTTPClient(d)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go writeForm(pw, mw, fa, mlg)

	req, err := http.NewRequestWithContext(ctx, "POST", *target, pr)
	if err != nil {
		mlg.LogPrintln(logx.CRITICAL, "http.NewRequest error:", err)
		os.Exit(1)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := client.Do(req)
	if err != nil {
		mlg.LogPrintln(logx.ERROR, "request failed:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	mlg.LogPrintf(logx.INFO, "server replied %s", resp.Status)
	io.Copy(os.Stdout, resp.Body)
	if resp.StatusCode != http.StatusOK {
		os.Exit(2)
	}
}
