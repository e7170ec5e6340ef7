package toolkit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLibraryNamesAreSorted(t *testing.T) {
	lib := DefaultLibrary()
	names := lib.Names()
	require.NotEmpty(t, names)
	for i := 1; i < len(names); i++ {
		assert.Less(t, names[i-1], names[i])
	}
	assert.Contains(t, names, "random_mobile")
	assert.Contains(t, names, "uuid4")
}

func TestLibraryCallUnknownFunction(t *testing.T) {
	_, err := DefaultLibrary().Call("does_not_exist")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown function")
}

func TestRandomMobile(t *testing.T) {
	out, err := DefaultLibrary().Call("random_mobile")
	require.NoError(t, err)
	mobile := out.(string)
	assert.Len(t, mobile, 11)
	for _, ch := range mobile {
		assert.True(t, ch >= '0' && ch <= '9')
	}
}

func TestRandomAccountLength(t *testing.T) {
	lib := DefaultLibrary()
	for i := 0; i < 20; i++ {
		out, err := lib.Call("random_account")
		require.NoError(t, err)
		account := out.(string)
		assert.GreaterOrEqual(t, len(account), 6)
		assert.LessOrEqual(t, len(account), 18)
	}
}

func TestRandomStringHonorsLength(t *testing.T) {
	lib := DefaultLibrary()

	out, err := lib.Call("random_string", 32)
	require.NoError(t, err)
	assert.Len(t, out.(string), 32)

	// Script arguments arrive as int64.
	out, err = lib.Call("random_string", int64(5))
	require.NoError(t, err)
	assert.Len(t, out.(string), 5)

	out, err = lib.Call("random_string")
	require.NoError(t, err)
	assert.Len(t, out.(string), 8)
}

func TestRandomEmail(t *testing.T) {
	out, err := DefaultLibrary().Call("random_email")
	require.NoError(t, err)
	assert.Contains(t, out.(string), "@")
}

func TestMD5Encrypt(t *testing.T) {
	out, err := DefaultLibrary().Call("md5_encrypt", "abc")
	require.NoError(t, err)
	assert.Equal(t, "900150983cd24fb0d6963f7d28e17f72", out)

	_, err = DefaultLibrary().Call("md5_encrypt")
	require.Error(t, err)
}

func TestBase64Encode(t *testing.T) {
	out, err := DefaultLibrary().Call("base64_encode", "abc")
	require.NoError(t, err)
	assert.Equal(t, "YWJj", out)
}

func TestUUID4Unique(t *testing.T) {
	lib := DefaultLibrary()
	a, err := lib.Call("uuid4")
	require.NoError(t, err)
	b, err := lib.Call("uuid4")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.Len(t, a.(string), 36)
}

func TestDescriptors(t *testing.T) {
	descs := DefaultLibrary().Descriptors()
	require.NotEmpty(t, descs)
	for _, d := range descs {
		assert.NotEmpty(t, d["name"])
		assert.NotEmpty(t, d["desc"])
		assert.NotNil(t, d["params"])
	}
}
