package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shaiso/Fleet/internal/domain"
	"github.com/shaiso/Fleet/internal/engine"
)

// Ошибки каталога.
var (
	// ErrWorkflowNotFound — workflow с таким ID не загружен.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrDuplicateWorkflow — два файла объявляют один и тот же ID.
	ErrDuplicateWorkflow = errors.New("duplicate workflow ID")
)

// Extensions — расширения файлов workflow. JSON — подмножество YAML.
var Extensions = []string{".yaml", ".yml", ".json"}

// snapshot — неизменяемый набор загруженных workflow.
type snapshot struct {
	byID     map[string]*domain.WorkflowDefinition
	loadedAt time.Time
}

// Catalog — read-only репозиторий workflow.
//
// Загружается из каталога файлов при старте и заменяется целиком при
// перезагрузке. Если хотя бы один файл некорректен, перезагрузка
// отклоняется и остаётся прежний набор. Get безопасен для конкурентного
// использования и не блокируется перезагрузкой.
type Catalog struct {
	dir     string
	current atomic.Pointer[snapshot]
	logger  *slog.Logger
}

// New создаёт пустой каталог для директории dir.
// Для загрузки вызовите Reload.
func New(dir string, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Catalog{dir: dir, logger: logger}
	c.current.Store(&snapshot{byID: map[string]*domain.WorkflowDefinition{}})
	return c
}

// FromDefinitions создаёт каталог из готовых определений (без директории).
func FromDefinitions(wfs ...*domain.WorkflowDefinition) (*Catalog, error) {
	c := New("", nil)
	byID, err := index(wfs)
	if err != nil {
		return nil, err
	}
	c.current.Store(&snapshot{byID: byID, loadedAt: time.Now()})
	return c, nil
}

// Get возвращает workflow по ID.
func (c *Catalog) Get(id string) (*domain.WorkflowDefinition, error) {
	wf, ok := c.current.Load().byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, id)
	}
	return wf, nil
}

// List возвращает загруженные workflow, отсортированные по ID.
func (c *Catalog) List() []*domain.WorkflowDefinition {
	snap := c.current.Load()
	wfs := make([]*domain.WorkflowDefinition, 0, len(snap.byID))
	for _, wf := range snap.byID {
		wfs = append(wfs, wf)
	}
	sort.Slice(wfs, func(i, j int) bool { return wfs[i].ID < wfs[j].ID })
	return wfs
}

// LoadedAt возвращает время последней успешной загрузки.
func (c *Catalog) LoadedAt() time.Time {
	return c.current.Load().loadedAt
}

// Reload перечитывает директорию и атомарно заменяет набор workflow.
func (c *Catalog) Reload() error {
	files, err := ListFiles(c.dir)
	if err != nil {
		return err
	}

	wfs := make([]*domain.WorkflowDefinition, 0, len(files))
	for _, path := range files {
		wf, err := ParseFile(path)
		if err != nil {
			return err
		}
		for _, w := range engine.Lint(wf) {
			c.logger.Warn("workflow lint warning",
				"workflow_id", wf.ID,
				"file", path,
				"warning", w,
			)
		}
		wfs = append(wfs, wf)
	}

	byID, err := index(wfs)
	if err != nil {
		return err
	}

	c.current.Store(&snapshot{byID: byID, loadedAt: time.Now()})
	c.logger.Info("workflow catalog loaded",
		"dir", c.dir,
		"workflows", len(byID),
	)
	return nil
}

// ListFiles возвращает файлы workflow в директории (без рекурсии), по имени.
func ListFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read workflows dir %s: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !hasWorkflowExt(e.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// ParseFile читает и валидирует один файл workflow.
func ParseFile(path string) (*domain.WorkflowDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	wf, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return wf, nil
}

// Parse разбирает YAML (или JSON) и валидирует workflow.
// Неизвестные поля — ошибка.
func Parse(data []byte) (*domain.WorkflowDefinition, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var wf domain.WorkflowDefinition
	if err := dec.Decode(&wf); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, engine.ErrEmptySteps
		}
		return nil, fmt.Errorf("parse workflow: %w", err)
	}

	if err := engine.Validate(&wf); err != nil {
		return nil, err
	}
	return &wf, nil
}

func index(wfs []*domain.WorkflowDefinition) (map[string]*domain.WorkflowDefinition, error) {
	byID := make(map[string]*domain.WorkflowDefinition, len(wfs))
	for _, wf := range wfs {
		if _, dup := byID[wf.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateWorkflow, wf.ID)
		}
		byID[wf.ID] = wf
	}
	return byID, nil
}

func hasWorkflowExt(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}
