package repo

import "strings"

// nullString возвращает nil для пустой строки — в БД пишем NULL, не "".
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// qualifyColumns добавляет алиас таблицы к каждой колонке списка.
// Нужен для запросов с JOIN, где одиночный список колонок неоднозначен.
func qualifyColumns(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
