package compression

import (
	"bytes"
	"testing"
)

func TestRoundtripAllTypes(t *testing.T) {
	data := bytes.Repeat([]byte("time-series-block-payload-"), 64)
	for _, typ := range []Type{NoCompression, SnappyCompression, LZ4Compression, ZstdCompression} {
		compressed, err := Compress(typ, data)
		if err != nil {
			t.Fatalf("%s compress: %v", typ, err)
		}
		got, err := Decompress(typ, compressed, len(data))
		if err != nil {
			t.Fatalf("%s decompress: %v", typ, err)
		}
		if !bytes.Equal(got, data) {
			t.Fatalf("%s roundtrip mismatch", typ)
		}
	}
}

func TestIsSupported(t *testing.T) {
	if !ZstdCompression.IsSupported() {
		t.Fatal("expected zstd to be supported")
	}
	if Type(0xFF).IsSupported() {
		t.Fatal("expected unknown type to be unsupported")
	}
}
