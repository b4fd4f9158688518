package nixhash

import (
	"crypto/sha256"
	"testing"

	"github.com/matzehuels/nixmirror/pkg/errors"
)

func TestEncodeToString(t *testing.T) {
	empty := sha256.Sum256(nil)
	hello := sha256.Sum256([]byte("hello world"))

	tests := []struct {
		name string
		in   []byte
		want string
	}{
		{"nil", nil, ""},
		{"low bits", []byte{0x1f}, "0z"},
		{"all bits", []byte{0xff}, "7z"},
		{"sha256 of empty", empty[:], "0mdqa9w1p6cmli6976v4wi0sw9r4p5prkj7lzfd1877wk11c9c73"},
		{"sha256 of hello world", hello[:], "1sfdxziarxw8j3p80lvswgpq9i7smdyxmmsj5sjhhgjdjfwjfkdr"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EncodeToString(tt.in); got != tt.want {
				t.Errorf("EncodeToString() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEncodedLen(t *testing.T) {
	for n, want := range map[int]int{0: 0, 1: 2, 20: 32, 32: 52, 64: 103} {
		if got := EncodedLen(n); got != want {
			t.Errorf("EncodedLen(%d) = %d, want %d", n, got, want)
		}
	}
}

func TestParseDigest(t *testing.T) {
	tests := []struct {
		in       string
		wantAlgo Algorithm
		wantVal  string
		wantErr  bool
	}{
		{"sha256:deadbeef", SHA256, "deadbeef", false},
		{"sha512:abc:def", SHA512, "abc:def", false},
		{"blake3:xyz", BLAKE3, "xyz", false},
		{"deadbeef", "", "", true},
		{"sha256:", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			d, err := ParseDigest(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDigest(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if err != nil {
				if !errors.Is(err, errors.ErrCodeParse) {
					t.Errorf("error code = %v, want PARSE_ERROR", errors.GetCode(err))
				}
				return
			}
			if d.Algorithm != tt.wantAlgo || d.Value != tt.wantVal {
				t.Errorf("ParseDigest(%q) = %+v", tt.in, d)
			}
			if d.String() != tt.in {
				t.Errorf("String() = %q, want %q", d.String(), tt.in)
			}
		})
	}
}

func TestAlgorithmNew(t *testing.T) {
	for _, a := range []Algorithm{"", SHA256, SHA512, SHA1, BLAKE3} {
		h, err := a.New()
		if err != nil {
			t.Errorf("%q.New() error: %v", a, err)
			continue
		}
		h.Write([]byte("x"))
		if len(h.Sum(nil)) == 0 {
			t.Errorf("%q.New() produced empty sum", a)
		}
	}

	if _, err := Algorithm("md5").New(); !errors.Is(err, errors.ErrCodeUnsupported) {
		t.Errorf("md5 New() error = %v, want UNSUPPORTED", err)
	}
}

func TestDigestVerify(t *testing.T) {
	data := []byte("nar contents")

	tests := []struct {
		name    string
		digest  Digest
		wantErr bool
	}{
		{"sha256 nix32", Digest{SHA256, "139gi2sh9a65fjm73hzd46smhwm4gbz6xcamdca1v852ikq2zaqn"}, false},
		{"sha256 hex", Digest{SHA256, "16ab2ff08ca2a01d146b55b16efe7aa47258b521edc371aa74c5a804b5882f8d"}, false},
		{"sha256 hex upper", Digest{SHA256, "16AB2FF08CA2A01D146B55B16EFE7AA47258B521EDC371AA74C5A804B5882F8D"}, false},
		{"sha256 base64", Digest{SHA256, "Fqsv8IyioB0Ua1Wxbv56pHJYtSHtw3GqdMWoBLWIL40="}, false},
		{"sha1 nix32", Digest{SHA1, "1jl0mhrsq1cl8hrf1rc3fls8dgwzb4kd"}, false},
		{"sha512 nix32", Digest{SHA512, "37q8nrzy1c30ghjxj3bq006ap8r19jwzk13cc46wc6q7vw1ialpckq9rcr6v9crbdcvbjy7pb4kccicifhsm7jxhc5m2jk6ll0xhz6g"}, false},
		{"wrong value", Digest{SHA256, "deadbeef"}, true},
		{"wrong nix32", Digest{SHA256, "0mdqa9w1p6cmli6976v4wi0sw9r4p5prkj7lzfd1877wk11c9c73"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := tt.digest.Algorithm.New()
			if err != nil {
				t.Fatal(err)
			}
			h.Write(data)
			err = tt.digest.Verify(h.Sum(nil))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Verify() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, errors.ErrCodeIntegrity) {
				t.Errorf("Verify() code = %v, want INTEGRITY_ERROR", errors.GetCode(err))
			}
		})
	}
}
