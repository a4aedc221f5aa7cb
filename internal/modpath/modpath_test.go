package modpath

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"a/./b", "a/b"},
		{"a/b/../c", "a/c"},
		{"../x", "../x"},
		{"a/b/c/../../d", "a/d"},
		{"./a", "a"},
		{"a//b/", "a/b"},
		{"foo", "foo"},
		{"a/..", ""},
		{"../a/../b", "../b"},
		{"a/../../x", "x"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"a/./b", "a/b/../c", "../x", "../../x", "a/..", "./../a/./b/..",
		"x/y/z/../../..", "lib//entry.js", "..", ".", "a/b/c",
	}
	for _, p := range inputs {
		once := Normalize(p)
		assert.Equal(t, once, Normalize(once), "normalize(%q)", p)
	}
}

func TestJoinWithDirectory(t *testing.T) {
	assert.Equal(t, "./lib/util", JoinWithDirectory("lib", "./util"))
	assert.Equal(t, "./util", JoinWithDirectory("", "./util"))
	assert.Equal(t, "util", JoinWithDirectory("lib", "util"))
	assert.Equal(t, "../util", JoinWithDirectory("lib", "../util"))
}

func TestRewrite(t *testing.T) {
	assert.Equal(t, "lib/util", Rewrite("./lib/./util"))
	assert.Equal(t, "util", Rewrite("./lib/../util"))
	assert.Equal(t, "lib/a/b", Rewrite("./lib/./a/././b"))
	assert.Equal(t, "pkg", Rewrite("pkg"))
}

func TestDir(t *testing.T) {
	assert.Equal(t, "lib", Dir("lib/entry.js"))
	assert.Equal(t, "a/b", Dir("a/b/c.js"))
	assert.Equal(t, "", Dir("main.js"))
}
