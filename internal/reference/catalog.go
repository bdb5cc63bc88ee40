package reference

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

var ErrUnknownDomain = errors.New("unknown substitution domain")

// Catalog — набор справочников подстановок. Безопасен для конкурентного чтения,
// Reload подменяет содержимое целиком.
type Catalog struct {
	mu      sync.RWMutex
	dir     string
	domains map[string]*index
}

type index struct {
	byName map[string]string // нормализованное имя -> код
	byCode map[string]string // код -> имя
}

// LoadCatalog читает все *.yaml/*.yml из dir. Отсутствующая папка — пустой каталог.
func LoadCatalog(dir string) (*Catalog, error) {
	c := &Catalog{dir: dir, domains: map[string]*index{}}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// NewCatalog собирает каталог из готовых справочников (тесты, встраивание).
func NewCatalog(domains ...Domain) *Catalog {
	c := &Catalog{domains: map[string]*index{}}
	for _, d := range domains {
		c.domains[d.Name] = build(d)
	}
	return c
}

// Reload перечитывает папку каталога.
func (c *Catalog) Reload() error {
	domains, err := loadDir(c.dir)
	if err != nil {
		return err
	}
	next := make(map[string]*index, len(domains))
	for name, d := range domains {
		next[name] = build(d)
	}
	c.mu.Lock()
	c.domains = next
	c.mu.Unlock()
	return nil
}

func loadDir(dir string) (map[string]Domain, error) {
	result := make(map[string]Domain)
	if dir == "" {
		return result, nil
	}
	files, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return result, nil
	}
	if err != nil {
		return nil, err
	}
	for _, file := range files {
		if file.IsDir() || !(strings.HasSuffix(file.Name(), ".yaml") || strings.HasSuffix(file.Name(), ".yml")) {
			continue
		}
		path := filepath.Join(dir, file.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		var d Domain
		if err := yaml.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		// имя справочника — из d.Name или из имени файла
		if d.Name == "" {
			d.Name = strings.TrimSuffix(file.Name(), filepath.Ext(file.Name()))
		}
		result[d.Name] = d
	}
	return result, nil
}

func build(d Domain) *index {
	ix := &index{byName: map[string]string{}, byCode: map[string]string{}}
	for _, it := range d.Items {
		ix.byCode[it.Code] = it.Name
		ix.byName[norm(it.Name)] = it.Code
		for _, a := range it.Aliases {
			ix.byName[norm(a)] = it.Code
		}
	}
	return ix
}

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func (c *Catalog) domain(name string) (*index, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ix, ok := c.domains[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDomain, name)
	}
	return ix, nil
}

// Code переводит имя из входных данных в код базы. ok=false — имя не найдено.
func (c *Catalog) Code(domain, name string) (string, bool, error) {
	ix, err := c.domain(domain)
	if err != nil {
		return "", false, err
	}
	code, ok := ix.byName[norm(name)]
	return code, ok, nil
}

// Name переводит код базы в имя; неизвестный код возвращается как есть.
func (c *Catalog) Name(domain, code string) (string, error) {
	ix, err := c.domain(domain)
	if err != nil {
		return "", err
	}
	if name, ok := ix.byCode[code]; ok {
		return name, nil
	}
	return code, nil
}

// Domains — число загруженных справочников
func (c *Catalog) Domains() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.domains)
}
