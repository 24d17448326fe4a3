package extraction

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/cloudflare/ahocorasick"
	"gopkg.in/yaml.v3"
)

//go:embed keywords.yaml
var defaultKeywordsYAML []byte

// keywordEntry набор синонимов одного значения справочника
type keywordEntry struct {
	Names    []string `yaml:"names"`
	Keywords []string `yaml:"keywords"`
}

type keywordFile struct {
	Categories     []keywordEntry `yaml:"categories"`
	PaymentMethods []keywordEntry `yaml:"payment_methods"`
}

// KeywordTable статическая таблица ключевых слов, разобранная один раз.
// Поиск регистронезависимый и выполняется за один проход автоматом Ахо-Корасик.
type KeywordTable struct {
	categories *keywordIndex
	payments   *keywordIndex
}

type keywordIndex struct {
	entries []keywordEntry
	matcher *ahocorasick.Matcher
	// owners[i] записи, у которых есть i-е ключевое слово автомата
	owners [][]int
}

// ParseKeywordTable разбирает YAML с таблицей ключевых слов
func ParseKeywordTable(data []byte) (*KeywordTable, error) {
	var file keywordFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse keyword table: %w", err)
	}
	return &KeywordTable{
		categories: newKeywordIndex(file.Categories),
		payments:   newKeywordIndex(file.PaymentMethods),
	}, nil
}

// DefaultKeywordTable встроенная таблица
func DefaultKeywordTable() *KeywordTable {
	table, err := ParseKeywordTable(defaultKeywordsYAML)
	if err != nil {
		panic(err)
	}
	return table
}

func newKeywordIndex(entries []keywordEntry) *keywordIndex {
	idx := &keywordIndex{entries: entries}
	// Одинаковые слова у разных записей сводятся к одному шаблону автомата
	seen := make(map[string]int)
	var patterns []string
	for i, e := range entries {
		for _, kw := range e.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw == "" {
				continue
			}
			k, ok := seen[kw]
			if !ok {
				k = len(patterns)
				seen[kw] = k
				patterns = append(patterns, kw)
				idx.owners = append(idx.owners, nil)
			}
			idx.owners[k] = append(idx.owners[k], i)
		}
	}
	if len(patterns) > 0 {
		idx.matcher = ahocorasick.NewStringMatcher(patterns)
	}
	return idx
}

// lookup возвращает первое по порядку таблицы значение словаря, у которого сработало ключевое слово
func (idx *keywordIndex) lookup(text string, allowed func(string) bool) (string, bool) {
	if idx == nil || idx.matcher == nil {
		return "", false
	}

	hit := make([]bool, len(idx.entries))
	for _, k := range idx.matcher.Match([]byte(strings.ToLower(text))) {
		for _, i := range idx.owners[k] {
			hit[i] = true
		}
	}

	for i, e := range idx.entries {
		if !hit[i] {
			continue
		}
		for _, name := range e.Names {
			if allowed(name) {
				return name, true
			}
		}
	}
	return "", false
}

// Category угадывает категорию по ключевым словам
func (t *KeywordTable) Category(text string, allowed func(string) bool) (string, bool) {
	return t.categories.lookup(text, allowed)
}

// PaymentMethod угадывает способ оплаты по ключевым словам
func (t *KeywordTable) PaymentMethod(text string, allowed func(string) bool) (string, bool) {
	return t.payments.lookup(text, allowed)
}
