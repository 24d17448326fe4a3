package model

import "slices"

// Vocabulary набор допустимых категорий и способов оплаты из внешнего хранилища
type Vocabulary struct {
	Categories     []string
	PaymentMethods []string
}

// HasCategory проверяет, входит ли категория в словарь
func (v Vocabulary) HasCategory(name string) bool {
	return slices.Contains(v.Categories, name)
}

// HasPaymentMethod проверяет, входит ли способ оплаты в словарь
func (v Vocabulary) HasPaymentMethod(name string) bool {
	return slices.Contains(v.PaymentMethods, name)
}

// DefaultCategory первая категория словаря
func (v Vocabulary) DefaultCategory() string {
	if len(v.Categories) == 0 {
		return ""
	}
	return v.Categories[0]
}

// DefaultPaymentMethod первый способ оплаты словаря
func (v Vocabulary) DefaultPaymentMethod() string {
	if len(v.PaymentMethods) == 0 {
		return ""
	}
	return v.PaymentMethods[0]
}

// SnapCategory возвращает name, если он есть в словаре, иначе первую категорию
func (v Vocabulary) SnapCategory(name string) string {
	if v.HasCategory(name) {
		return name
	}
	return v.DefaultCategory()
}

// SnapPaymentMethod возвращает name, если он есть в словаре, иначе первый способ оплаты
func (v Vocabulary) SnapPaymentMethod(name string) string {
	if v.HasPaymentMethod(name) {
		return name
	}
	return v.DefaultPaymentMethod()
}

// WithDefaults подставляет одноэлементные списки вместо пустых
func (v Vocabulary) WithDefaults(category, paymentMethod string) Vocabulary {
	out := Vocabulary{
		Categories:     compact(v.Categories),
		PaymentMethods: compact(v.PaymentMethods),
	}
	if len(out.Categories) == 0 {
		out.Categories = []string{category}
	}
	if len(out.PaymentMethods) == 0 {
		out.PaymentMethods = []string{paymentMethod}
	}
	return out
}

// compact убирает пустые строки и повторы, сохраняя порядок
func compact(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" || slices.Contains(out, v) {
			continue
		}
		out = append(out, v)
	}
	return out
}
