package bind_group_provider

import "testing"

func TestProviderLabelAndSignature(t *testing.T) {
	p := NewBindGroupProvider("sky/lut")
	if p.Label() != "sky/lut" {
		t.Fatalf("expected label sky/lut; got %q", p.Label())
	}
	if p.BindGroup(0) != nil || p.Signature(0) != "" {
		t.Fatal("expected empty provider")
	}

	p.SetBindGroup(1, nil, "transmittance|placeholder")
	if p.Signature(1) != "transmittance|placeholder" {
		t.Fatalf("unexpected signature %q", p.Signature(1))
	}
	if p.Signature(0) != "" {
		t.Fatal("signature leaked into another group")
	}

	p.Release()
	if p.Signature(1) != "" {
		t.Fatal("expected signatures cleared by Release")
	}
}
