package wat

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const exampleWat = `(module
  ;; a trivial addition function
  (func $add (param $a i32) (param $b i32) (result i32)
    local.get $a
    local.get $b
    i32.add)
  (export "add" (func $add))
)`

type typeValue struct {
	Type  tokenType
	Value string
}

func toTypeValues(tokens []*token) []typeValue {
	out := make([]typeValue, len(tokens))
	for i, tok := range tokens {
		out[i] = typeValue{tok.Type, tok.Value}
	}
	return out
}

func TestLex_Example(t *testing.T) {
	tokens, err := lexTokens(exampleWat)
	require.NoError(t, err)
	require.Equal(t, []typeValue{
		{tokenLParen, "("},
		{tokenKeyword, "module"},
		{tokenLParen, "("},
		{tokenKeyword, "func"},
		{tokenID, "$add"},
		{tokenLParen, "("},
		{tokenKeyword, "param"},
		{tokenID, "$a"},
		{tokenKeyword, "i32"},
		{tokenRParen, ")"},
		{tokenLParen, "("},
		{tokenKeyword, "param"},
		{tokenID, "$b"},
		{tokenKeyword, "i32"},
		{tokenRParen, ")"},
		{tokenLParen, "("},
		{tokenKeyword, "result"},
		{tokenKeyword, "i32"},
		{tokenRParen, ")"},
		{tokenKeyword, "local.get"},
		{tokenID, "$a"},
		{tokenKeyword, "local.get"},
		{tokenID, "$b"},
		{tokenKeyword, "i32.add"},
		{tokenRParen, ")"},
		{tokenLParen, "("},
		{tokenKeyword, "export"},
		{tokenString, "add"},
		{tokenLParen, "("},
		{tokenKeyword, "func"},
		{tokenID, "$add"},
		{tokenRParen, ")"},
		{tokenRParen, ")"},
		{tokenRParen, ")"},
	}, toTypeValues(tokens))
}

func TestLex_Example_Positions(t *testing.T) {
	tokens, err := lexTokens(exampleWat)
	require.NoError(t, err)
	require.Equal(t, 1, tokens[0].Line)
	require.Equal(t, 1, tokens[0].Column)
	// "module" begins right after the opening paren.
	require.Equal(t, 1, tokens[1].Line)
	require.Equal(t, 2, tokens[1].Column)
	// The final close paren is alone on the last line.
	last := tokens[len(tokens)-1]
	require.Equal(t, 8, last.Line)
	require.Equal(t, 1, last.Column)
}

func TestLex_String_Escapes(t *testing.T) {
	tokens, err := lexTokens(`"a\tb\n\"c\"\u{48}"`)
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	require.Equal(t, "a\tb\n\"c\"H", tokens[0].Value)
}

func TestLex_BlockComment_Nested(t *testing.T) {
	tokens, err := lexTokens("(; outer (; inner ;) still outer ;) (module)")
	require.NoError(t, err)
	require.Len(t, tokens, 3)
	require.Equal(t, tokenKeyword, tokens[1].Type)
	require.Equal(t, "module", tokens[1].Value)
}

func TestLex_LineComment(t *testing.T) {
	tokens, err := lexTokens("(module) ;; trailing comment\n")
	require.NoError(t, err)
	require.Len(t, tokens, 3)
}

func TestLex_HexByteEscape(t *testing.T) {
	tokens, err := lexTokens(`"\00\ff"`)
	require.NoError(t, err)
	require.Equal(t, []byte{0x00, 0xff}, []byte(tokens[0].Value))
}
