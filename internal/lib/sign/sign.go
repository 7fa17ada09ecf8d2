// Package sign реализует подпись параметров запросов к платёжному шлюзу и
// проверку подписи его уведомлений.
//
// Ключи сортируются лексикографически, пары key=value склеиваются через "&",
// в конец дописывается секрет, от строки берётся MD5 в нижнем регистре.
// Поле hash и параметры с пустыми значениями в подписи не участвуют.
package sign

import (
	"crypto/md5" //nolint:gosec // алгоритм задан протоколом шлюза
	"crypto/subtle"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// HashField имя параметра, в котором передаётся подпись.
const HashField = "hash"

// Sign вычисляет подпись набора параметров.
func Sign(params map[string]string, secret string) string {
	keys := make([]string, 0, len(params))
	for k, v := range params {
		if k == HashField || v == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(params[k])
	}
	b.WriteString(secret)

	sum := md5.Sum([]byte(b.String())) //nolint:gosec
	return hex.EncodeToString(sum[:])
}

// Verify пересчитывает подпись и сравнивает её с полученной.
// Пустая подпись или пустой набор параметров всегда дают false.
func Verify(params map[string]string, received, secret string) bool {
	if len(params) == 0 || received == "" {
		return false
	}
	expected := Sign(params, secret)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToLower(received))) == 1
}

// FromValues превращает url.Values в плоский набор параметров, берётся первое значение ключа.
func FromValues(values url.Values) map[string]string {
	params := make(map[string]string, len(values))
	for k, v := range values {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}
	return params
}
