// Package knowledge answers questions about Lab PSTI people, projects and facilities from static facts.
package knowledge

import (
	"fmt"
	"os"
	"sort"

	"github.com/bytedance/sonic"
)

type Student struct {
	Nama      string   `json:"nama"`
	Panggilan []string `json:"panggilan,omitempty"`
	Role      string   `json:"role"`
	Skills    []string `json:"skills"`
	Projects  []string `json:"projects,omitempty"`
	// Angkatan is filled from the cohort key the student is listed under.
	Angkatan string `json:"-"`
}

type Project struct {
	Nama       string   `json:"nama"`
	Kategori   string   `json:"kategori"`
	Deskripsi  string   `json:"deskripsi"`
	Developers []string `json:"developers,omitempty"`
}

type Pembina struct {
	Nama    string `json:"nama"`
	Jabatan string `json:"jabatan,omitempty"`
}

type Contact struct {
	Email   string `json:"email"`
	Telepon string `json:"telepon"`
}

type LabInfo struct {
	Nama      string   `json:"nama"`
	Fasilitas []string `json:"fasilitas"`
	Jam       []string `json:"jam"`
	Kontak    Contact  `json:"kontak"`
	Lokasi    string   `json:"lokasi"`
}

// Facts is read-only after Load.
type Facts struct {
	MahasiswaReka map[string][]Student `json:"mahasiswa_reka"`
	Projects      []Project            `json:"projects"`
	Pembina       []Pembina            `json:"pembina"`
	Lab           LabInfo              `json:"lab_info"`

	students []Student
	cohorts  []string
}

// LoadFacts reads a knowledge file.
func LoadFacts(path string) (*Facts, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read knowledge file: %w", err)
	}
	var f Facts
	if err := sonic.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse knowledge file %s: %w", path, err)
	}
	if err := f.index(); err != nil {
		return nil, fmt.Errorf("knowledge file %s: %w", path, err)
	}
	return &f, nil
}

// NewFacts builds facts in code, mostly for tests.
func NewFacts(cohorts map[string][]Student, projects []Project, pembina []Pembina, lab LabInfo) (*Facts, error) {
	f := &Facts{MahasiswaReka: cohorts, Projects: projects, Pembina: pembina, Lab: lab}
	if err := f.index(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *Facts) index() error {
	f.cohorts = f.cohorts[:0]
	for year := range f.MahasiswaReka {
		f.cohorts = append(f.cohorts, year)
	}
	sort.Strings(f.cohorts)

	f.students = f.students[:0]
	seen := map[string]bool{}
	for _, year := range f.cohorts {
		for _, s := range f.MahasiswaReka[year] {
			if s.Nama == "" {
				return fmt.Errorf("student without nama in cohort %s", year)
			}
			if seen[s.Nama] {
				return fmt.Errorf("student %q listed twice", s.Nama)
			}
			seen[s.Nama] = true
			s.Angkatan = year
			f.students = append(f.students, s)
		}
	}
	for _, p := range f.Projects {
		if p.Nama == "" {
			return fmt.Errorf("project without nama")
		}
	}
	return nil
}

// Students returns every student, oldest cohort first, in file order within a cohort.
func (f *Facts) Students() []Student { return f.students }

// Cohorts returns the cohort years in ascending order.
func (f *Facts) Cohorts() []string { return f.cohorts }

func (f *Facts) Cohort(year string) []Student { return f.MahasiswaReka[year] }

func (f *Facts) Student(nama string) (Student, bool) {
	for _, s := range f.students {
		if s.Nama == nama {
			return s, true
		}
	}
	return Student{}, false
}

func (f *Facts) Project(nama string) (Project, bool) {
	for _, p := range f.Projects {
		if p.Nama == nama {
			return p, true
		}
	}
	return Project{}, false
}
