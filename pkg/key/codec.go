package key

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// DefaultSeparator é o separador NUL usado entre campos de chaves compostas.
const DefaultSeparator = "\x00"

// Undefined marca um campo ausente no documento. Diferente de nil (null
// explícito): CreatePartialKey para no primeiro Undefined, mas mantém nils.
var Undefined = undefined{}

type undefined struct{}

// IsUndefined reporta se v é o sentinela Undefined.
func IsUndefined(v any) bool {
	_, ok := v.(undefined)
	return ok
}

// Serialize codifica uma tupla de valores em uma única string comparável.
// Valores são coeridos para string; nulos e ausentes viram o token vazio.
// Ocorrências do separador e de barras invertidas dentro de um valor são
// escapadas com prefixo `\`.
func Serialize(values []any, separator string) string {
	if separator == "" {
		separator = DefaultSeparator
	}
	if len(values) == 0 {
		return ""
	}

	tokens := make([]string, len(values))
	for i, v := range values {
		tokens[i] = escape(CoerceString(v), separator)
	}
	return strings.Join(tokens, separator)
}

// Deserialize é o inverso de Serialize. Tokens vazios viram nil (null e
// undefined colapsam em null no round-trip); os demais permanecem strings.
func Deserialize(s string, separator string) []any {
	if separator == "" {
		separator = DefaultSeparator
	}
	if s == "" {
		return []any{}
	}

	var values []any
	var token strings.Builder
	sepLen := len(separator)

	for i := 0; i < len(s); {
		if s[i] == '\\' && i+1 < len(s) {
			// Escapado: consome a barra e mantém a sequência literal
			if strings.HasPrefix(s[i+1:], separator) {
				token.WriteString(separator)
				i += 1 + sepLen
			} else {
				token.WriteByte(s[i+1])
				i += 2
			}
			continue
		}
		if sepLen > 0 && strings.HasPrefix(s[i:], separator) {
			values = append(values, tokenValue(token.String()))
			token.Reset()
			i += sepLen
			continue
		}
		token.WriteByte(s[i])
		i++
	}
	values = append(values, tokenValue(token.String()))
	return values
}

// CreatePartialKey serializa o prefixo da tupla até o primeiro Undefined.
// Valores nil são mantidos no prefixo. Usado para range scans por prefixo.
func CreatePartialKey(values []any, separator string) string {
	prefix := make([]any, 0, len(values))
	for _, v := range values {
		if IsUndefined(v) {
			break
		}
		prefix = append(prefix, v)
	}
	return Serialize(prefix, separator)
}

// CoerceString converte um valor para sua forma textual determinística:
// inteiros e floats em decimal, booleanos como true|false, datas como
// milissegundos Unix, nulos e ausentes como vazio.
func CoerceString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case undefined:
		return ""
	case string:
		return val
	case int:
		return strconv.FormatInt(int64(val), 10)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int64:
		return strconv.FormatInt(val, 10)
	case float32:
		return formatFloat(float64(val))
	case float64:
		return formatFloat(val)
	case bool:
		return strconv.FormatBool(val)
	case time.Time:
		return strconv.FormatInt(val.UnixMilli(), 10)
	case bson.DateTime:
		return strconv.FormatInt(int64(val), 10)
	default:
		return fmt.Sprintf("%v", val)
	}
}

func formatFloat(f float64) string {
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func escape(s, separator string) string {
	var b strings.Builder
	for i := 0; i < len(s); {
		if s[i] == '\\' {
			b.WriteByte('\\')
			b.WriteByte('\\')
			i++
			continue
		}
		if strings.HasPrefix(s[i:], separator) {
			b.WriteByte('\\')
			b.WriteString(separator)
			i += len(separator)
			continue
		}
		b.WriteByte(s[i])
		i++
	}
	return b.String()
}

func tokenValue(token string) any {
	if token == "" {
		return nil
	}
	return token
}
