package usecase

import "testing"

func TestSecureFilename(t *testing.T) {
	cases := map[string]string{
		"eye1.jpg":                   "eye1.jpg",
		"My cool movie.mov":          "My_cool_movie.mov",
		"../../../etc/passwd":        "etc_passwd",
		`C:\photos\goat.png`:         "C_photos_goat.png",
		"cool \u00fcml\u00e4uts.txt": "cool_umlauts.txt",
		"..":                         "",
		"  .hidden.jpg ":             "hidden.jpg",
		"kambing<script>.jpg":        "kambingscript.jpg",
	}
	for input, want := range cases {
		if got := SecureFilename(input); got != want {
			t.Fatalf("SecureFilename(%q) = %q, want %q", input, got, want)
		}
	}
}
