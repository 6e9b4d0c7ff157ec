package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"

	"github.com/ashita-ai/kiroku"
	"github.com/ashita-ai/kiroku/internal/decode"
	"github.com/ashita-ai/kiroku/internal/model"
	"github.com/ashita-ai/kiroku/internal/speccache"
)

// printer writes command results as indented text sections or JSON lines.
type printer struct {
	w          io.Writer
	format     string
	enc        *json.Encoder
	printBytes bool
}

func newPrinter(w io.Writer, format string) *printer {
	return &printer{w: w, format: format, enc: json.NewEncoder(w)}
}

func (p *printer) json(v any) error {
	return p.enc.Encode(v)
}

func (p *printer) linef(format string, args ...any) {
	_, _ = fmt.Fprintf(p.w, format+"\n", args...)
}

type extrinsicJSON struct {
	Index     int               `json:"index"`
	Extrinsic *decode.Extrinsic `json:"extrinsic,omitempty"`
	Error     string            `json:"error,omitempty"`
	Bytes     string            `json:"bytes,omitempty"`
}

type blockJSON struct {
	Block       uint64          `json:"block"`
	Hash        string          `json:"hash"`
	SpecVersion uint32          `json:"spec_version"`
	Extrinsics  []extrinsicJSON `json:"extrinsics"`
	Error       string          `json:"error,omitempty"`
}

func (p *printer) block(b kiroku.BlockResult) error {
	if p.format == "json" {
		out := blockJSON{
			Block:       b.Number,
			Hash:        hexBytes(b.Hash),
			SpecVersion: b.SpecVersion,
			Extrinsics:  make([]extrinsicJSON, 0, len(b.Extrinsics)),
			Error:       errString(b.Err),
		}
		for _, x := range b.Extrinsics {
			ex := extrinsicJSON{Index: x.Index, Extrinsic: x.Extrinsic, Error: errString(x.Err)}
			if p.printBytes || x.Err != nil {
				ex.Bytes = hexBytes(x.Bytes)
			}
			out.Extrinsics = append(out.Extrinsics, ex)
		}
		return p.json(out)
	}

	p.linef("block %d %s (spec %d)", b.Number, hexBytes(b.Hash), b.SpecVersion)
	if b.Err != nil {
		p.linef("  error: %v", b.Err)
		return nil
	}
	for _, x := range b.Extrinsics {
		if x.Err != nil {
			p.linef("  %d: error: %v", x.Index, x.Err)
			p.linef("     bytes: %s", hexBytes(x.Bytes))
			continue
		}
		ext := x.Extrinsic
		head := fmt.Sprintf("  %d: %s.%s", x.Index, ext.Call.Pallet, ext.Call.Name)
		if ext.Address != "" {
			head += " from " + ext.Address
		}
		p.linef("%s", head)
		for _, e := range ext.Extensions {
			p.linef("     ext %s: %s", e.Name, e.Value)
		}
		for _, a := range ext.Call.Args {
			p.linef("     %s: %s", a.Name, a.Value)
		}
		if p.printBytes {
			p.linef("     bytes: %s", hexBytes(x.Bytes))
		}
	}
	return nil
}

type storageItemJSON struct {
	decode.StorageItem
	Error string `json:"error,omitempty"`
}

type storageJSON struct {
	Block       uint64            `json:"block"`
	SpecVersion uint32            `json:"spec_version"`
	Items       []storageItemJSON `json:"items"`
	Error       string            `json:"error,omitempty"`
}

func (p *printer) storage(r kiroku.StorageResult) error {
	if p.format == "json" {
		out := storageJSON{
			Block:       r.Block,
			SpecVersion: r.SpecVersion,
			Items:       make([]storageItemJSON, 0, len(r.Items)),
			Error:       errString(r.Err),
		}
		for _, it := range r.Items {
			out.Items = append(out.Items, storageItemJSON{StorageItem: it, Error: errString(it.Err)})
		}
		return p.json(out)
	}

	p.linef("spec %d at block %d", r.SpecVersion, r.Block)
	if r.Err != nil {
		p.linef("  error: %v", r.Err)
		return nil
	}
	for _, it := range r.Items {
		name := it.Pallet + "." + it.Entry
		switch {
		case it.Err != nil:
			p.linef("  %s %s: error: %v", name, hexBytes(it.Key), it.Err)
		case it.Skipped != "":
			p.linef("  %s %s: skipped: %s", name, hexBytes(it.Key), it.Skipped)
		default:
			p.linef("  %s [%s] = %s", name, decode.FormatKeys(it.Keys), it.Value)
		}
	}
	return nil
}

func (p *printer) specChange(c speccache.Change) error {
	if p.format == "json" {
		return p.json(c)
	}
	p.linef("block %d: spec version %d", c.Block, c.SpecVersion)
	return nil
}

// summary closes a decode command's output. kind names the summary in JSON.
func (p *printer) summary(kind string, sum any) {
	if p.format == "json" {
		_ = p.json(map[string]any{"summary": kind, "totals": sum})
		return
	}
	switch s := sum.(type) {
	case kiroku.BlockSummary:
		p.linef("%d blocks, %d extrinsics, %d failures", s.Blocks, s.Extrinsics, s.Failures)
	case kiroku.StorageSummary:
		p.linef("%d spec versions, %d items, %d skipped, %d failures", s.SpecVersions, s.Items, s.Skipped, s.Failures)
	}
}

func (p *printer) run(r model.Run) error {
	if p.format == "json" {
		return p.json(r)
	}
	finished := "-"
	if r.CompletedAt != nil {
		finished = r.CompletedAt.Format("2006-01-02T15:04:05Z07:00")
	}
	p.linef("%s  %-22s %-9s %s  %s", r.ID, r.Command, r.Status,
		r.StartedAt.Format("2006-01-02T15:04:05Z07:00"), finished)
	return nil
}

func (p *printer) report(r *kiroku.RunReport) error {
	if p.format == "json" {
		return p.json(r)
	}
	if err := p.run(r.Run); err != nil {
		return err
	}
	c := r.Counts
	p.linef("  extrinsics: %d (%d failed)", c.Extrinsics, c.ExtrinsicErrors)
	p.linef("  storage items: %d (%d failed, %d skipped)", c.StorageItems, c.StorageItemErrors, c.StorageItemSkipped)
	for _, e := range r.Errors {
		where := fmt.Sprintf("block %d #%d", e.BlockNumber, e.Index)
		if e.Pallet != "" {
			where += " " + e.Pallet + "." + e.Call
		}
		p.linef("  %s: %s", where, e.Error)
	}
	return nil
}

func hexBytes(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
