package pubkey

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
)

func TestParseRoundTrip(t *testing.T) {
	const addr = "HwpaZvifoU61b59fxa2Mo1YRLYuWUtn1spZ9XKs5QD5Z"

	k, err := Parse(addr)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if got := k.String(); got != addr {
		t.Errorf("String() = %s, want %s", got, addr)
	}
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"empty", ""},
		{"bad alphabet", "0OIl"},
		{"too short", "3yZe7d"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(tt.in); err == nil {
				t.Errorf("Parse(%q) expected error", tt.in)
			}
		})
	}
}

func TestZeroIsSystemProgram(t *testing.T) {
	if got := Zero.String(); got != "11111111111111111111111111111111" {
		t.Errorf("Zero.String() = %s", got)
	}
	if !Zero.IsZero() {
		t.Error("Zero.IsZero() = false")
	}
}

func TestJSONText(t *testing.T) {
	kp, err := NewKeypair()
	if err != nil {
		t.Fatalf("NewKeypair() error = %v", err)
	}

	in := struct {
		Key PublicKey `json:"key"`
	}{Key: kp.PublicKey()}

	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if !bytes.Contains(data, []byte(kp.PublicKey().String())) {
		t.Errorf("expected base58 form in %s", data)
	}

	var out struct {
		Key PublicKey `json:"key"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if out.Key != in.Key {
		t.Errorf("key = %s, want %s", out.Key, in.Key)
	}
}

func TestCreateProgramAddressKnownVector(t *testing.T) {
	program := MustParse("BPFLoaderUpgradeab1e11111111111111111111111")

	got, err := CreateProgramAddress([][]byte{{}, {1}}, program)
	if err != nil {
		t.Fatalf("CreateProgramAddress() error = %v", err)
	}
	if want := "BwqrghZA2htAcqq8dzP1WDAhTXYTYWj7CHxF5j7TDBAe"; got.String() != want {
		t.Errorf("address = %s, want %s", got, want)
	}
}

func TestFindProgramAddress(t *testing.T) {
	program := MustParse("HwpaZvifoU61b59fxa2Mo1YRLYuWUtn1spZ9XKs5QD5Z")
	seeds := [][]byte{[]byte("escrow"), bytes.Repeat([]byte{7}, 32)}

	addr, bump, err := FindProgramAddress(seeds, program)
	if err != nil {
		t.Fatalf("FindProgramAddress() error = %v", err)
	}
	if addr.IsOnCurve() {
		t.Error("derived address must be off curve")
	}

	again, againBump, err := FindProgramAddress(seeds, program)
	if err != nil {
		t.Fatalf("FindProgramAddress() second call error = %v", err)
	}
	if again != addr || againBump != bump {
		t.Error("derivation is not deterministic")
	}

	recreated, err := CreateProgramAddress(append(seeds, []byte{bump}), program)
	if err != nil {
		t.Fatalf("CreateProgramAddress() error = %v", err)
	}
	if recreated != addr {
		t.Errorf("re-derived %s, want %s", recreated, addr)
	}
}

func TestFindProgramAddressDistinctSeeds(t *testing.T) {
	program := MustParse("HwpaZvifoU61b59fxa2Mo1YRLYuWUtn1spZ9XKs5QD5Z")
	seen := make(map[PublicKey]int)

	for i := 0; i < 64; i++ {
		addr, _, err := FindProgramAddress([][]byte{[]byte("escrow"), {byte(i)}}, program)
		if err != nil {
			t.Fatalf("FindProgramAddress(%d) error = %v", i, err)
		}
		if prev, ok := seen[addr]; ok {
			t.Fatalf("seed %d collides with seed %d", i, prev)
		}
		seen[addr] = i
	}
}

func TestSeedLimits(t *testing.T) {
	program := MustParse("HwpaZvifoU61b59fxa2Mo1YRLYuWUtn1spZ9XKs5QD5Z")

	_, err := CreateProgramAddress([][]byte{make([]byte, MaxSeedLength+1)}, program)
	if !errors.Is(err, ErrMaxSeedLength) {
		t.Errorf("long seed error = %v, want ErrMaxSeedLength", err)
	}

	_, _, err = FindProgramAddress(make([][]byte, MaxSeeds), program)
	if !errors.Is(err, ErrTooManySeeds) {
		t.Errorf("too many seeds error = %v, want ErrTooManySeeds", err)
	}
}

func TestKeypairSignVerify(t *testing.T) {
	kp, err := NewKeypair()
	if err != nil {
		t.Fatalf("NewKeypair() error = %v", err)
	}
	if !kp.PublicKey().IsOnCurve() {
		t.Error("wallet key should be on curve")
	}

	msg := []byte("escrow")
	sig := kp.Sign(msg)
	if !Verify(kp.PublicKey(), msg, sig) {
		t.Error("valid signature rejected")
	}

	sig[0] ^= 0xff
	if Verify(kp.PublicKey(), msg, sig) {
		t.Error("tampered signature accepted")
	}
	if Verify(kp.PublicKey(), msg, sig[:10]) {
		t.Error("short signature accepted")
	}
}

func TestKeypairFromMnemonic(t *testing.T) {
	mnemonic, err := GenerateMnemonic()
	if err != nil {
		t.Fatalf("GenerateMnemonic() error = %v", err)
	}

	a, err := KeypairFromMnemonic(mnemonic, "")
	if err != nil {
		t.Fatalf("KeypairFromMnemonic() error = %v", err)
	}
	b, err := KeypairFromMnemonic(mnemonic, "")
	if err != nil {
		t.Fatalf("KeypairFromMnemonic() error = %v", err)
	}
	if a.PublicKey() != b.PublicKey() {
		t.Error("same mnemonic produced different keys")
	}

	c, err := KeypairFromMnemonic(mnemonic, "other")
	if err != nil {
		t.Fatalf("KeypairFromMnemonic() error = %v", err)
	}
	if a.PublicKey() == c.PublicKey() {
		t.Error("passphrase did not change the key")
	}

	if _, err := KeypairFromMnemonic("not a mnemonic", ""); err == nil {
		t.Error("expected error for invalid mnemonic")
	}
}
