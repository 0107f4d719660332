package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"photostudio/internal/domain"
	"photostudio/internal/infra"
	"photostudio/internal/providers"
	"photostudio/internal/session"
	"photostudio/internal/storage"
	"photostudio/internal/templates"
)

func main() {
	var (
		inFlag       string
		promptFlag   string
		templateFlag string
		outFlag      string
		zipFlag      bool
		listFlag     bool
	)
	flag.StringVar(&inFlag, "in", "", "Photo to edit")
	flag.StringVar(&promptFlag, "prompt", "", "Edit instruction")
	flag.StringVar(&templateFlag, "template", "", "Preset id to use as the instruction")
	flag.StringVar(&outFlag, "out", ".", "Directory for edited-image.png")
	flag.BoolVar(&zipFlag, "zip", false, "Also write edited-image.zip with the original and the model's message")
	flag.BoolVar(&listFlag, "list-templates", false, "Print the preset ids and exit")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s -in photo.jpg (-prompt TEXT | -template ID) [-out DIR] [-zip]\n\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
		fmt.Fprintln(flag.CommandLine.Output(), "\nEnvironment:")
		fmt.Fprintln(flag.CommandLine.Output(), infra.Description())
	}
	flag.Parse()

	_ = godotenv.Load()

	if listFlag {
		catalog, err := templates.Load(os.Getenv("TEMPLATES_PATH"))
		if err != nil {
			fail(err)
		}
		for _, t := range catalog.List() {
			fmt.Printf("%-18s %s\n", t.ID, t.Name)
		}
		return
	}

	if strings.TrimSpace(inFlag) == "" || (promptFlag == "" && templateFlag == "") {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := infra.LoadConfig()
	if err != nil {
		fail(err)
	}
	logger := infra.NewLoggerTo(os.Stderr, cfg.AppEnv)

	catalog, err := templates.Load(cfg.TemplatesPath)
	if err != nil {
		fail(err)
	}
	editor, _, err := providers.NewEditor(cfg, &logger)
	if err != nil {
		fail(err)
	}

	s := session.New("cli", editor, catalog, session.WithLogger(&logger), session.WithTimeout(cfg.EditorTimeout))

	f, err := os.Open(inFlag)
	if err != nil {
		fail(err)
	}
	err = s.LoadImage(f, mime.TypeByExtension(filepath.Ext(inFlag)), cfg.MaxUploadBytes)
	f.Close()
	if err != nil {
		fail(err)
	}
	if notice := s.Snapshot().Notice; notice != "" {
		fmt.Fprintln(os.Stderr, notice)
	}

	if templateFlag != "" {
		if err := s.ApplyTemplate(templateFlag); err != nil {
			fail(err)
		}
	}
	if promptFlag != "" {
		s.SetInstruction(promptFlag)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	st, err := s.Generate(ctx)
	if err != nil {
		fail(err)
	}
	if st.Status != session.Succeeded {
		fail(errors.New(st.Error))
	}

	store, err := storage.NewFileStore(outFlag)
	if err != nil {
		fail(err)
	}
	keys, err := store.ExportResult(ctx, st.Original, *st.Result, zipFlag)
	if err != nil {
		fail(err)
	}
	for _, key := range keys {
		path, _ := store.Path(key)
		fmt.Println(path)
	}
	if st.Result.Narrative != "" {
		fmt.Fprintln(os.Stderr, st.Result.Narrative)
	}
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "photoedit:", domain.DisplayMessage(err))
	os.Exit(1)
}
