package key

import (
	"strconv"

	"github.com/bobboyms/docstore/pkg/types"
)

// Comparator compara duas chaves serializadas.
type Comparator func(a, b string) int

// CreateComparator retorna um comparador sobre chaves serializadas que honra
// a ordem por campo. As duas chaves são decodificadas em tuplas; cada token
// vira a chave tipada correspondente (IntKey, FloatKey, BoolKey, VarcharKey)
// e a ordem por campo é delegada a Compare. Null ordena baixo em asc e alto
// em desc; desc nega a comparação. Prefixos iguais caem para o próximo
// campo.
func CreateComparator(fields []Field, separator string) Comparator {
	return func(a, b string) int {
		if a == b {
			return 0
		}
		va := Deserialize(a, separator)
		vb := Deserialize(b, separator)

		// Uma chave totalmente nula serializa como string vazia e decodifica
		// como tupla vazia; completa com nulls até o número de campos para
		// que a ordenação de null se aplique.
		for len(va) < len(fields) {
			va = append(va, nil)
		}
		for len(vb) < len(fields) {
			vb = append(vb, nil)
		}

		n := len(va)
		if len(vb) < n {
			n = len(vb)
		}

		for i := 0; i < n; i++ {
			order := OrderAsc
			if i < len(fields) {
				order = fields[i].Order
			}
			c := compareValues(va[i], vb[i], order)
			if c != 0 {
				return c
			}
		}

		// Prefixo igual: a tupla mais curta (chave parcial) vem primeiro
		if len(va) < len(vb) {
			return -1
		}
		if len(va) > len(vb) {
			return 1
		}
		return 0
	}
}

func compareValues(a, b any, order string) int {
	c := compareAsc(a, b)
	if order == OrderDesc {
		return -c
	}
	return c
}

func compareAsc(a, b any) int {
	aNull := a == nil
	bNull := b == nil
	if aNull && bNull {
		return 0
	}
	if aNull {
		return -1
	}
	if bNull {
		return 1
	}

	as := a.(string)
	bs := b.(string)

	ka := typedKey(as)
	kb := typedKey(bs)

	// Números comparam entre si mesmo quando os tipos diferem (int vs
	// float; datas já chegam como milissegundos inteiros)
	if fa, aNum := numericValue(ka); aNum {
		if fb, bNum := numericValue(kb); bNum {
			return types.FloatKey(fa).Compare(types.FloatKey(fb))
		}
	}

	if sameKind(ka, kb) {
		return ka.Compare(kb)
	}

	// Tipos mistos caem para a comparação textual dos tokens
	return types.VarcharKey(as).Compare(types.VarcharKey(bs))
}

// typedKey decodifica um token serializado para a chave tipada que o
// produziu: inteiro decimal, float, booleano ou string.
func typedKey(token string) types.Comparable {
	if i, err := strconv.ParseInt(token, 10, 64); err == nil {
		return types.IntKey(i)
	}
	if f, err := strconv.ParseFloat(token, 64); err == nil {
		return types.FloatKey(f)
	}
	if token == "true" || token == "false" {
		return types.BoolKey(token == "true")
	}
	return types.VarcharKey(token)
}

func numericValue(k types.Comparable) (float64, bool) {
	switch v := k.(type) {
	case types.IntKey:
		return float64(v), true
	case types.FloatKey:
		return float64(v), true
	}
	return 0, false
}

func sameKind(a, b types.Comparable) bool {
	switch a.(type) {
	case types.BoolKey:
		_, ok := b.(types.BoolKey)
		return ok
	case types.VarcharKey:
		_, ok := b.(types.VarcharKey)
		return ok
	}
	return false
}
