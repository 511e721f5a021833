package knowledge

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
)

// LookupInput is the argument of every knowledge tool.
type LookupInput struct {
	Query string `json:"query" jsonschema:"description=Pertanyaan atau nama yang dicari"`
}

// StudentLookupTool finds a Reka student named in the query. An empty result means no match.
func StudentLookupTool(m *Matcher) (tool.InvokableTool, error) {
	return utils.InferTool("student_lookup", "Cari profil mahasiswa Reka Lab PSTI dari nama atau panggilan",
		func(ctx context.Context, in LookupInput) (string, error) {
			s, ok := m.Student(NewMessage(m.Normalize(in.Query)))
			if !ok {
				return "", nil
			}
			return profile(s, NewMessage("")), nil
		})
}

// ProjectLookupTool finds a lab project named in the query.
func ProjectLookupTool(m *Matcher) (tool.InvokableTool, error) {
	return utils.InferTool("project_lookup", "Cari project Lab PSTI beserta deskripsi dan pengembangnya",
		func(ctx context.Context, in LookupInput) (string, error) {
			p, ok := m.Project(NewMessage(m.Normalize(in.Query)))
			if !ok {
				return "", nil
			}
			return fmt.Sprintf("%s (%s): %s\nDikembangkan oleh: %s", p.Nama, p.Kategori, p.Deskripsi, orDash(p.Developers)), nil
		})
}

// LabInfoTool returns the lab's location, hours, contact and facilities regardless of the query.
func LabInfoTool(f *Facts) (tool.InvokableTool, error) {
	return utils.InferTool("lab_info", "Informasi umum Lab PSTI: lokasi, jam buka, kontak dan fasilitas",
		func(ctx context.Context, _ LookupInput) (string, error) {
			lab := f.Lab
			var b strings.Builder
			fmt.Fprintf(&b, "%s\nLokasi: %s\nJam: %s\nKontak: %s / %s\nFasilitas: %s",
				lab.Nama, lab.Lokasi, strings.Join(lab.Jam, ", "), lab.Kontak.Email, lab.Kontak.Telepon,
				orDash(lab.Fasilitas))
			return b.String(), nil
		})
}

// Tools returns the lookup tools offered to the generative fallback.
func Tools(m *Matcher) ([]tool.InvokableTool, error) {
	builders := []func() (tool.InvokableTool, error){
		func() (tool.InvokableTool, error) { return StudentLookupTool(m) },
		func() (tool.InvokableTool, error) { return ProjectLookupTool(m) },
		func() (tool.InvokableTool, error) { return LabInfoTool(m.Facts()) },
	}
	out := make([]tool.InvokableTool, 0, len(builders))
	for _, build := range builders {
		t, err := build()
		if err != nil {
			return nil, fmt.Errorf("error creating knowledge tool: %w", err)
		}
		out = append(out, t)
	}
	return out, nil
}
