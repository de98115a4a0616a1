package sim

import (
	"context"
	"testing"
	"time"

	"candash-go/drivers/can"
	"candash-go/drivers/can/sdo"
)

func recv(t *testing.T, d *Device) can.Frame {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	f, err := d.Recv(ctx)
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	return f
}

func TestUploadAnswersRegister(t *testing.T) {
	d := New(3, 8)
	d.SetRegister(61, Register{Bits: 30, Size: 1})
	if err := d.Send(sdo.UploadRequest(3, 61, 0)); err != nil {
		t.Fatal(err)
	}
	f := recv(t, d)
	if f.ID != sdo.ResponseID(3) {
		t.Fatalf("id %#x", f.ID)
	}
	m, ok := sdo.ParseResponse(f)
	if !ok || m.Kind != sdo.KindUpload || m.Index != 61 || m.Data != 30 || m.Size != 1 {
		t.Fatalf("got %+v ok=%v", m, ok)
	}
}

func TestUnknownRegisterAborts(t *testing.T) {
	d := New(3, 8)
	_ = d.Send(sdo.UploadRequest(3, 99, 0))
	m, ok := sdo.ParseResponse(recv(t, d))
	if !ok || m.Kind != sdo.KindAbort || m.Data != sdo.AbortNoObject {
		t.Fatalf("got %+v", m)
	}
}

func TestDownloadUpdatesAndAcks(t *testing.T) {
	d := New(3, 8)
	d.SetRegister(27, Register{Bits: 1, Size: 1})
	d.SetRegister(2, Register{Bits: 5, Size: 4, ReadOnly: true})

	req, err := sdo.DownloadRequest(3, 27, 0, 2, 1)
	if err != nil {
		t.Fatal(err)
	}
	_ = d.Send(req)
	if m, _ := sdo.ParseResponse(recv(t, d)); m.Kind != sdo.KindDownloadAck || m.Index != 27 {
		t.Fatalf("ack %+v", m)
	}
	if r, _ := d.Register(27); r.Bits != 2 {
		t.Fatalf("register %d", r.Bits)
	}

	req, _ = sdo.DownloadRequest(3, 2, 0, 9, 4)
	_ = d.Send(req)
	if m, _ := sdo.ParseResponse(recv(t, d)); m.Kind != sdo.KindAbort || m.Data != sdo.AbortReadOnly {
		t.Fatalf("read-only %+v", m)
	}
	if r, _ := d.Register(2); r.Bits != 5 {
		t.Fatal("read-only register changed")
	}
}

func TestIgnoresOtherNodes(t *testing.T) {
	d := New(3, 8)
	d.SetRegister(61, Register{Bits: 30, Size: 1})
	_ = d.Send(sdo.UploadRequest(4, 61, 0))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := d.Recv(ctx); err == nil {
		t.Fatal("unexpected response")
	}
}

func TestBroadcastLayout(t *testing.T) {
	d := New(1, 8)
	cells := make([]uint16, 8)
	for i := range cells {
		cells[i] = 3600
	}
	d.SetPack(Pack{SOC: 50, Cells: cells})
	frames := d.Broadcast()
	// three summaries, module 0 (2 frames), module 1 (1 frame of 2 cells)
	if len(frames) != 6 {
		t.Fatalf("frames %d", len(frames))
	}
	if frames[0].ID != IDSocSoh || frames[0].Data[0] != 50 {
		t.Fatalf("soc frame %+v", frames[0])
	}
	last := frames[5]
	if last.ID != CellBase+2 || last.Len != 4 {
		t.Fatalf("module 1 frame %+v", last)
	}
}

func TestClosedPort(t *testing.T) {
	d := New(1, 1)
	_ = d.Close()
	if _, err := d.Recv(context.Background()); err != can.ErrClosed {
		t.Fatalf("recv err %v", err)
	}
	if err := d.Send(sdo.UploadRequest(1, 1, 0)); err != can.ErrClosed {
		t.Fatalf("send err %v", err)
	}
}
