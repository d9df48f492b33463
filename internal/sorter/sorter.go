// Package sorter turns a remote cover image referenced from a new note into
// a local vault file and points the note's front matter at it.
package sorter

import (
	"context"
	"errors"
	"log/slog"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/starford/imagesorter/internal/apperr"
	"github.com/starford/imagesorter/internal/checksum"
	"github.com/starford/imagesorter/internal/fetcher"
	"github.com/starford/imagesorter/internal/filename"
	"github.com/starford/imagesorter/internal/frontmatter"
	"github.com/starford/imagesorter/internal/matcher"
	"github.com/starford/imagesorter/internal/models"
	"github.com/starford/imagesorter/internal/storage"
)

// Front-matter keys, in lookup order.
var (
	LinkKeys   = []string{"Link", "link", "url"}
	ImageKeys  = []string{"image", "Image", "cover"}
	TitleKeys  = []string{"title", "Title"}
	AuthorKeys = []string{"author", "Author"}
)

// ImageKey is the key written back with the local reference.
const ImageKey = "image"

// Defaults.
const (
	DefaultSettleDelay = 300 * time.Millisecond
)

// DefaultExtensions lists the note formats the sorter reacts to.
var DefaultExtensions = []string{".md"}

// RuleSource provides the current rule table.
type RuleSource interface {
	Get() models.RuleSet
}

// Fetcher downloads an image.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*fetcher.Resource, error)
}

// Recorder persists finished runs.
type Recorder interface {
	Record(run *models.Run) error
}

// Notifier is told about every finished run.
type Notifier interface {
	PublishRun(run models.Run)
}

// Config tunes the pipeline.
type Config struct {
	SettleDelay    time.Duration
	Extensions     []string
	DedupeInFlight bool
}

// Option is a functional option for the Sorter.
type Option func(*Sorter)

// WithRecorder records every finished run.
func WithRecorder(r Recorder) Option {
	return func(s *Sorter) { s.recorder = r }
}

// WithNotifier publishes every finished run.
func WithNotifier(n Notifier) Option {
	return func(s *Sorter) { s.notifier = n }
}

// Sorter runs the note → image pipeline.
type Sorter struct {
	store    storage.Provider
	rules    RuleSource
	fetcher  Fetcher
	logger   *slog.Logger
	cfg      Config
	recorder Recorder
	notifier Notifier
	now      func() time.Time

	mu       sync.Mutex
	inflight map[string]struct{}
}

// New creates a Sorter.
func New(store storage.Provider, rules RuleSource, f Fetcher, logger *slog.Logger, cfg Config, opts ...Option) *Sorter {
	if len(cfg.Extensions) == 0 {
		cfg.Extensions = DefaultExtensions
	}
	if cfg.SettleDelay < 0 {
		cfg.SettleDelay = 0
	}
	s := &Sorter{
		store:    store,
		rules:    rules,
		fetcher:  f,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
		inflight: make(map[string]struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Eligible reports whether notePath has one of the configured note
// extensions.
func (s *Sorter) Eligible(notePath string) bool {
	ext := path.Ext(notePath)
	for _, e := range s.cfg.Extensions {
		if strings.EqualFold(ext, e) {
			return true
		}
	}
	return false
}

// OnDocumentCreated is the entry point for creation events. It waits the
// settle delay and then processes the note. Ineligible files and duplicate
// in-flight events for the same note return a NotApplicable error without
// being recorded.
func (s *Sorter) OnDocumentCreated(ctx context.Context, notePath string) error {
	notePath = filename.NormalizePath(notePath)
	if !s.Eligible(notePath) {
		return apperr.NotApplicable(notePath, "not a note")
	}

	if s.cfg.DedupeInFlight {
		if !s.acquire(notePath) {
			s.logger.Debug("sorter: run already in flight", slog.String("path", notePath))
			return apperr.NotApplicable(notePath, "already in flight")
		}
		defer s.release(notePath)
	}

	if s.cfg.SettleDelay > 0 {
		timer := time.NewTimer(s.cfg.SettleDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	_, err := s.Process(ctx, notePath)
	return err
}

func (s *Sorter) acquire(notePath string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[notePath]; busy {
		return false
	}
	s.inflight[notePath] = struct{}{}
	return true
}

func (s *Sorter) release(notePath string) {
	s.mu.Lock()
	delete(s.inflight, notePath)
	s.mu.Unlock()
}

// Process runs the pipeline once for notePath, without a settle delay.
// On success it returns where the image was stored. Every abandoned run
// returns an *apperr.Error; the note is only rewritten after the image
// file has been written.
func (s *Sorter) Process(ctx context.Context, notePath string) (*models.TargetAsset, error) {
	notePath = filename.NormalizePath(notePath)
	run := models.Run{NotePath: notePath, StartedAt: s.now().UTC()}
	asset, err := s.process(ctx, notePath, &run)
	s.finish(&run, asset, err)
	if err != nil {
		return nil, err
	}
	return asset, nil
}

func (s *Sorter) process(ctx context.Context, notePath string, run *models.Run) (*models.TargetAsset, error) {
	// 1. Read the note.
	raw, err := s.store.Read(notePath)
	if err != nil {
		return nil, &apperr.Error{Kind: apperr.KindStorage, Op: "read note", Path: notePath, Err: err}
	}

	// 2. Decode front matter.
	doc, err := frontmatter.Decode(string(raw))
	if errors.Is(err, frontmatter.ErrNoFrontMatter) {
		return nil, apperr.NotApplicable(notePath, "no front matter")
	}
	if err != nil {
		return nil, &apperr.Error{Kind: apperr.KindParse, Op: "decode front matter", Path: notePath, Err: err}
	}
	data := doc.Data

	// 3. Image reference.
	imageURL, _, ok := data.FirstText(ImageKeys...)
	if !ok {
		return nil, apperr.NotApplicable(notePath, "no image key")
	}
	if filename.IsLocalReference(imageURL) {
		return nil, apperr.NotApplicable(notePath, "image already local")
	}
	imageURL = strings.TrimSpace(imageURL)
	shownURL := fetcher.DisplayURL(imageURL)
	run.ImageURL = shownURL

	// 4–5. Link → domain → rule.
	link, _, _ := data.FirstText(LinkKeys...)
	folder := ""
	if rule, matched := matcher.Resolve(link, s.rules.Get()); matched {
		folder = rule.Folder
	}

	// 6. Base name.
	noteBase := strings.TrimSuffix(path.Base(notePath), path.Ext(notePath))
	title, _, ok := data.FirstText(TitleKeys...)
	if !ok {
		title = noteBase
	}
	author, _, _ := data.FirstText(AuthorKeys...)
	baseName := filename.DeriveBaseName(title, author)
	if baseName == "" {
		baseName = filename.Sanitize(noteBase)
	}
	if baseName == "" {
		return nil, apperr.NotApplicable(notePath, "empty file name")
	}

	// 7. Fetch.
	res, err := s.fetcher.Fetch(ctx, imageURL)
	if err != nil {
		e := &apperr.Error{Kind: apperr.KindNetwork, Op: "fetch image", Path: notePath, URL: shownURL, Err: err}
		var fe *fetcher.FetchError
		if errors.As(err, &fe) {
			e.StatusCode = fe.StatusCode
		}
		return nil, e
	}

	// 8–9. Extension and target path.
	ext := filename.InferExtension(imageURL, res.ContentType)
	asset := &models.TargetAsset{
		BaseName:  baseName,
		Extension: ext,
		Folder:    filename.NormalizePath(folder),
		FullPath:  filename.Join(folder, baseName+ext),
	}
	run.TargetPath = asset.FullPath

	// 10. Folder.
	if asset.Folder != "" {
		if err := s.store.MkdirAll(asset.Folder); err != nil {
			return nil, &apperr.Error{Kind: apperr.KindStorage, Op: "create folder", Path: asset.Folder, Err: err}
		}
	}

	// 11. Last write wins.
	exists, err := s.store.Exists(asset.FullPath)
	if err != nil {
		return nil, &apperr.Error{Kind: apperr.KindStorage, Op: "stat target", Path: asset.FullPath, Err: err}
	}
	if exists {
		if err := s.store.Delete(asset.FullPath); err != nil {
			return nil, &apperr.Error{Kind: apperr.KindStorage, Op: "delete existing", Path: asset.FullPath, Err: err}
		}
	}

	// 12. Binary.
	if err := s.store.Create(asset.FullPath, res.Data); err != nil {
		return nil, &apperr.Error{Kind: apperr.KindStorage, Op: "write image", Path: asset.FullPath, URL: shownURL, Err: err}
	}
	run.Checksum = checksum.Sum(res.Data)

	// 13–14. Point the note at the local copy.
	data.Set(ImageKey, frontmatter.String(filename.LocalReference(asset.FileName())))
	text, err := doc.Rewrite(data)
	if err != nil {
		return nil, &apperr.Error{Kind: apperr.KindParse, Op: "encode front matter", Path: notePath, Err: err}
	}
	if err := s.store.Write(notePath, []byte(text)); err != nil {
		return nil, &apperr.Error{Kind: apperr.KindStorage, Op: "write note", Path: notePath, Err: err}
	}
	return asset, nil
}

func (s *Sorter) finish(run *models.Run, asset *models.TargetAsset, err error) {
	run.FinishedAt = s.now().UTC()

	switch kind := apperr.KindOf(err); {
	case err == nil:
		run.Outcome = models.OutcomeSorted
		s.logger.Info("sorter: image stored",
			slog.String("path", run.NotePath),
			slog.String("target", asset.FullPath),
			slog.String("url", run.ImageURL))
	case kind == apperr.KindNotApplicable:
		run.Outcome = models.OutcomeSkipped
		run.ErrorKind = string(kind)
		run.Error = err.Error()
		s.logger.Debug("sorter: nothing to do",
			slog.String("path", run.NotePath),
			slog.String("reason", err.Error()))
	default:
		run.Outcome = models.OutcomeFailed
		run.ErrorKind = string(kind)
		run.Error = err.Error()
		attrs := []any{
			slog.String("path", run.NotePath),
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()),
		}
		var e *apperr.Error
		if errors.As(err, &e) {
			if e.URL != "" {
				attrs = append(attrs, slog.String("url", e.URL))
			}
			if e.StatusCode != 0 {
				attrs = append(attrs, slog.Int("status", e.StatusCode))
			}
		}
		s.logger.Error("sorter: run failed", attrs...)
	}

	if s.recorder != nil {
		if err := s.recorder.Record(run); err != nil {
			s.logger.Warn("sorter: record run failed", slog.String("error", err.Error()))
		}
	}
	if s.notifier != nil {
		s.notifier.PublishRun(*run)
	}
}
