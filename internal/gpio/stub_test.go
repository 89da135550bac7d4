package gpio

import "testing"

func TestStubChipSetAndReadOutput(t *testing.T) {
	c := NewStubChip()
	if err := c.Configure(17, DirOutput, PullNone); err != nil {
		t.Fatalf("configure: %v", err)
	}
	if err := c.SetOutput(17, true); err != nil {
		t.Fatalf("set: %v", err)
	}
	calls := c.Calls()
	if len(calls) != 2 {
		t.Fatalf("expected 2 recorded calls, got %d", len(calls))
	}
	if calls[1].Op != "set_output" || calls[1].Arg != true {
		t.Fatalf("unexpected call record: %+v", calls[1])
	}
}

func TestStubChipInputSeed(t *testing.T) {
	c := NewStubChip()
	c.SetInput(27, true)
	v, err := c.ReadInput(27)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !v {
		t.Fatal("expected seeded input to read true")
	}
}

func TestStubChipOneWire(t *testing.T) {
	c := NewStubChip()
	c.SeedOneWire("28-0000aabbcc", "a1 01 4b 46 7f ff 0c 10 56 : crc=56 YES\na1 01 4b 46 7f ff 0c 10 56 t=26625\n")

	ids, err := c.OneWireList()
	if err != nil || len(ids) != 1 {
		t.Fatalf("list: %v %v", ids, err)
	}
	payload, err := c.OneWireRead(ids[0])
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if payload == "" {
		t.Fatal("expected payload")
	}
}

func TestStubChipOneWireMissing(t *testing.T) {
	c := NewStubChip()
	if _, err := c.OneWireRead("does-not-exist"); err == nil {
		t.Fatal("expected error for unknown 1-wire id")
	}
}
