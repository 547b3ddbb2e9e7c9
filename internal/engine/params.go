package engine

import "strings"

// VarPrefix — префикс ссылки на переменную в параметрах шага.
const VarPrefix = "$"

// Resolve подставляет ссылки на переменные в параметрах шага.
//
// Строка вида "$name" заменяется значением variables["name"] (любого типа).
// Если переменной нет, строка остаётся как есть — ошибка не возвращается.
// Остальные значения (включая вложенные map и slice) передаются без изменений.
//
// Функция чистая: входные map не изменяются.
func Resolve(params, variables map[string]any) map[string]any {
	resolved := make(map[string]any, len(params))
	for k, v := range params {
		resolved[k] = resolveValue(v, variables)
	}
	return resolved
}

// resolveValue подставляет одно значение.
func resolveValue(v any, variables map[string]any) any {
	s, ok := v.(string)
	if !ok || !strings.HasPrefix(s, VarPrefix) {
		return v
	}

	if val, found := variables[strings.TrimPrefix(s, VarPrefix)]; found {
		return val
	}
	return s
}
