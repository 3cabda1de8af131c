package mcpservice

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/netra-systems/zen-sub153/mcp"
)

// PromptFileExt is the extension of prompt template files.
const PromptFileExt = ".tmpl"

// LoadPromptFile parses a template file into a Prompt named after the file.
// A leading line starting with "#" is taken as the description; every
// placeholder in the body becomes an optional argument.
func LoadPromptFile(path string) (Prompt, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Prompt{}, fmt.Errorf("read prompt file: %w", err)
	}
	body := string(b)
	name := strings.TrimSuffix(filepath.Base(path), PromptFileExt)
	desc := "Prompt loaded from " + filepath.Base(path)
	if first, rest, ok := strings.Cut(body, "\n"); ok && strings.HasPrefix(first, "#") {
		desc = strings.TrimSpace(strings.TrimPrefix(first, "#"))
		body = rest
	}
	p := Prompt{
		Name:        name,
		Description: desc,
		Template:    strings.TrimSpace(body),
		Category:    "custom",
	}
	for _, ph := range Placeholders(p.Template) {
		p.Arguments = append(p.Arguments, mcp.PromptArgument{Name: ph})
	}
	return p, nil
}

// LoadPromptDir registers every *.tmpl file in dir and returns the names
// that were loaded.
func LoadPromptDir(dir string, reg *PromptRegistry) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*"+PromptFileExt))
	if err != nil {
		return nil, err
	}
	var names []string
	for _, m := range matches {
		p, err := LoadPromptFile(m)
		if err != nil {
			reg.opts.logger.Warn("prompts.dir.load.fail", slog.String("path", m), slog.String("err", err.Error()))
			continue
		}
		reg.Register(p)
		names = append(names, p.Name)
	}
	return names, nil
}

// WatchPromptDir loads dir and then keeps the registry in sync with it until
// ctx is done: created or written files are (re)registered, removed or
// renamed files are unregistered.
func WatchPromptDir(ctx context.Context, dir string, reg *PromptRegistry) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fsnotify unavailable: %w", err)
	}
	defer func() {
		_ = w.Close()
	}()
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	if _, err := LoadPromptDir(dir, reg); err != nil {
		return err
	}

	log := reg.opts.logger
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Ext(ev.Name) != PromptFileExt {
				continue
			}
			name := strings.TrimSuffix(filepath.Base(ev.Name), PromptFileExt)
			switch {
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				if reg.Unregister(name) {
					log.Info("prompts.dir.unregister", slog.String("prompt", name))
				}
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				p, err := LoadPromptFile(ev.Name)
				if err != nil {
					log.Warn("prompts.dir.load.fail", slog.String("path", ev.Name), slog.String("err", err.Error()))
					continue
				}
				reg.Register(p)
				log.Info("prompts.dir.register", slog.String("prompt", name))
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Debug("prompts.dir.watch_error", slog.String("err", err.Error()))
		}
	}
}
