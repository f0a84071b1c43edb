package logbuf

import (
	"fmt"
	"strings"
	"testing"
)

func TestBuffer_AppendAndSnapshot(t *testing.T) {
	b := New(10)

	b.Infof("first")
	b.Warnf("second")
	b.Errorf("third")

	entries := b.Snapshot(0)
	if len(entries) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(entries))
	}
	if entries[0].Message != "first" || entries[2].Message != "third" {
		t.Errorf("Entries out of order: %+v", entries)
	}
	if entries[0].Level != "INFO" || entries[1].Level != "WARN" || entries[2].Level != "ERROR" {
		t.Errorf("Unexpected levels: %+v", entries)
	}
}

func TestBuffer_WrapsAtCapacity(t *testing.T) {
	b := New(10)

	for i := 0; i < 25; i++ {
		b.Infof("line %d", i)
	}

	if b.Len() != 10 {
		t.Fatalf("Expected 10 retained entries, got %d", b.Len())
	}

	entries := b.Snapshot(0)
	if entries[0].Message != "line 15" {
		t.Errorf("Expected oldest retained to be line 15, got %s", entries[0].Message)
	}
	if entries[9].Message != "line 24" {
		t.Errorf("Expected newest to be line 24, got %s", entries[9].Message)
	}
}

func TestBuffer_SequenceIsMonotonic(t *testing.T) {
	b := New(10)

	for i := 0; i < 30; i++ {
		b.Infof("m")
	}

	entries := b.Snapshot(0)
	var prev uint64
	for _, e := range entries {
		if e.Seq <= prev {
			t.Fatalf("Sequence not monotonic: %d after %d", e.Seq, prev)
		}
		prev = e.Seq
	}
	if entries[len(entries)-1].Seq != 30 {
		t.Errorf("Expected last seq 30, got %d", entries[len(entries)-1].Seq)
	}
}

func TestBuffer_SnapshotCount(t *testing.T) {
	b := New(50)
	for i := 0; i < 20; i++ {
		b.Infof("line %d", i)
	}

	entries := b.Snapshot(5)
	if len(entries) != 5 {
		t.Fatalf("Expected 5 entries, got %d", len(entries))
	}
	if entries[0].Message != "line 15" {
		t.Errorf("Expected snapshot to keep the most recent entries, got %s first", entries[0].Message)
	}
}

func TestBuffer_Lines(t *testing.T) {
	b := New(10)
	b.Infof("hello %s", "world")

	lines := b.Lines(0)
	if len(lines) != 1 {
		t.Fatalf("Expected 1 line, got %d", len(lines))
	}
	if !strings.Contains(lines[0], "[INFO] hello world") {
		t.Errorf("Unexpected line format: %s", lines[0])
	}
}

func TestBuffer_Clear(t *testing.T) {
	b := New(10)
	b.Infof("x")
	b.Clear()
	if b.Len() != 0 {
		t.Errorf("Expected empty buffer after clear, got %d", b.Len())
	}
	b.Infof("y")
	entries := b.Snapshot(0)
	if entries[0].Seq != 2 {
		t.Errorf("Expected sequence to survive clear, got %d", entries[0].Seq)
	}
}

func TestBuffer_ClampsCapacity(t *testing.T) {
	b := New(1)
	for i := 0; i < 12; i++ {
		b.Infof(fmt.Sprintf("line %d", i))
	}
	if b.Len() != 10 {
		t.Errorf("Expected min capacity 10, got %d", b.Len())
	}
}
