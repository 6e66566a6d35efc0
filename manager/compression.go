package manager

import "strings"

// compressionExtensions mirrors walcatalog's own (unexported) table; kept
// here too since the manager needs to recognize a spooled file's
// compression before it knows the bare segment name to classify or move.
var compressionExtensions = map[string]string{
	".gz":   "gzip",
	".bz2":  "bzip2",
	".zstd": "zstd",
	".lz4":  "lz4",
}

func stripCompressionExt(name string) (bare string, compression string) {
	for ext, label := range compressionExtensions {
		if strings.HasSuffix(name, ext) {
			return strings.TrimSuffix(name, ext), label
		}
	}
	return name, ""
}
