package knowledge

import (
	"fmt"
	"strings"
)

// Rule answers a message directly from facts. Match must not modify ctx; it returns the
// context the session should keep.
type Rule interface {
	Name() string
	Match(msg Message, ctx Context) (answer string, next Context, ok bool)
}

var (
	developerWords = []string{"buat", "bikin", "membuat", "developer", "pengembang", "perancang", "pembuat", "dikembangkan", "develop", "rancang"}
	detailWords    = []string{"info", "informasi", "tentang", "apa", "detail", "jelaskan", "penjelasan", "deskripsi"}
	projectWords   = []string{"project", "projek", "proyek"}
	labWords       = []string{"laboratorium", "lab"}
	skillCueWords  = []string{"skill", "keahlian", "kemampuan", "bisa", "jago"}

	// -nya words that are not anaphoric
	nyaExceptions = map[string]bool{
		"nya": true, "hanya": true, "punya": true, "tanya": true, "bertanya": true, "ditanya": true,
		"sebenarnya": true, "biasanya": true, "selanjutnya": true, "lainnya": true, "semuanya": true,
		"caranya": true, "misalnya": true, "sebelumnya": true, "akhirnya": true, "khususnya": true,
		"bukanya": true, "kontaknya": true, "alamatnya": true, "lokasinya": true, "jamnya": true,
	}
)

type skillCue struct {
	label   string
	phrases []string
	// asked cues only fire when the message is a question about students or skills
	asked bool
}

var skillCues = []skillCue{
	{label: "IoT", phrases: []string{"iot", "internet of things"}},
	{label: "CyberSecurity", phrases: []string{"cybersecurity", "cyber security", "keamanan siber"}},
	{label: "3D Modeling", phrases: []string{"3d modeling", "modeling 3d", "3d"}, asked: true},
	{label: "Web Development", phrases: []string{"web"}, asked: true},
	{label: "UI/UX", phrases: []string{"ui ux", "uiux"}, asked: true},
	{label: "VR/AR", phrases: []string{"vr ar", "vr", "ar"}, asked: true},
	{label: "AI", phrases: []string{"ai", "machine learning", "kecerdasan buatan"}, asked: true},
	{label: "Mobile Development", phrases: []string{"mobile", "android"}, asked: true},
}

// skillQuestion reports a message that asks who has a skill, as opposed to one that only
// mentions a technology ("ada 3d printer").
func skillQuestion(msg Message) bool {
	return hasPrefix(msg, skillCueWords...) || msg.Has("mahasiswa", "siapa")
}

func hasNya(msg Message) bool {
	for _, t := range msg.Tokens {
		if len(t) > 3 && strings.HasSuffix(t, "nya") && !nyaExceptions[t] {
			return true
		}
	}
	return false
}

func studentPronoun(msg Message) bool { return msg.Has("dia", "beliau") || hasNya(msg) }
func projectPronoun(msg Message) bool { return msg.Has("itu", "tersebut") || hasNya(msg) }

func hasPrefix(msg Message, prefixes ...string) bool {
	for _, t := range msg.Tokens {
		for _, p := range prefixes {
			if strings.HasPrefix(t, p) {
				return true
			}
		}
	}
	return false
}

func bullets(items []string) string {
	lines := make([]string, len(items))
	for i, it := range items {
		lines[i] = "• " + it
	}
	return strings.Join(lines, "\n")
}

func studentNames(students []Student) []string {
	names := make([]string, len(students))
	for i, s := range students {
		names[i] = s.Nama
	}
	return names
}

func orDash(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}

// profile renders a student, narrowed to skills or projects when the message asks only for that.
func profile(s Student, msg Message) string {
	switch {
	case hasPrefix(msg, skillCueWords...):
		return fmt.Sprintf("Skill %s: %s", s.Nama, orDash(s.Skills))
	case hasPrefix(msg, projectWords...):
		if len(s.Projects) == 0 {
			return fmt.Sprintf("%s belum tercatat mengerjakan project di Lab PSTI.", s.Nama)
		}
		return fmt.Sprintf("Project %s:\n%s", s.Nama, bullets(s.Projects))
	}

	var b strings.Builder
	b.WriteString(s.Nama)
	if len(s.Panggilan) > 0 {
		fmt.Fprintf(&b, " (%s)", s.Panggilan[0])
	}
	role := s.Role
	if role == "" {
		role = "Anggota"
	}
	fmt.Fprintf(&b, "\nRole: %s\nAngkatan: Reka %s\nSkill: %s\nProject: %s",
		role, s.Angkatan, orDash(s.Skills), orDash(s.Projects))
	return b.String()
}

func developers(p Project) string {
	if len(p.Developers) == 0 {
		return fmt.Sprintf("%s dikembangkan oleh tim mahasiswa Lab PSTI.", p.Nama)
	}
	return fmt.Sprintf("%s dikembangkan oleh:\n%s", p.Nama, bullets(p.Developers))
}

func projectDetail(p Project) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s)\n%s", p.Nama, p.Kategori, p.Deskripsi)
	if len(p.Developers) > 0 {
		fmt.Fprintf(&b, "\nDeveloper: %s", strings.Join(p.Developers, ", "))
	}
	return b.String()
}

type projectDeveloperRule struct{ m *Matcher }

func (projectDeveloperRule) Name() string { return "project_developer" }

func (r projectDeveloperRule) Match(msg Message, ctx Context) (string, Context, bool) {
	if !msg.Has(developerWords...) {
		return "", ctx, false
	}
	p, ok := r.m.Project(msg)
	if !ok && projectPronoun(msg) {
		p, ok = r.m.facts.Project(ctx.Get(KeyLastProject))
	}
	if !ok {
		return "", ctx, false
	}
	next := ctx.With(KeyLastProject, p.Nama)
	if len(p.Developers) == 1 {
		next[KeyLastStudent] = p.Developers[0]
	}
	return developers(p), next, true
}

type studentProfileRule struct{ m *Matcher }

func (studentProfileRule) Name() string { return "student_profile" }

func (r studentProfileRule) Match(msg Message, ctx Context) (string, Context, bool) {
	s, ok := r.m.Student(msg)
	if !ok {
		return "", ctx, false
	}
	return profile(s, msg), ctx.With(KeyLastStudent, s.Nama), true
}

type projectDetailRule struct{ m *Matcher }

func (projectDetailRule) Name() string { return "project_detail" }

func (r projectDetailRule) Match(msg Message, ctx Context) (string, Context, bool) {
	p, ok := r.m.Project(msg)
	if !ok {
		return "", ctx, false
	}
	// a bare project name is a detail question too
	if !msg.Has(detailWords...) && msg.Text != r.m.Normalize(p.Nama) {
		return "", ctx, false
	}
	return projectDetail(p), ctx.With(KeyLastProject, p.Nama), true
}

type cohortListRule struct{ f *Facts }

func (cohortListRule) Name() string { return "cohort_list" }

func (r cohortListRule) Match(msg Message, ctx Context) (string, Context, bool) {
	if !msg.Has("reka") {
		return "", ctx, false
	}
	for _, year := range r.f.Cohorts() {
		if !msg.Has(year) && !(len(year) == 4 && msg.Has(year[2:])) {
			continue
		}
		list := r.f.Cohort(year)
		if len(list) == 0 {
			return fmt.Sprintf("Tidak ada mahasiswa Reka %s.", year), ctx, true
		}
		return fmt.Sprintf("Mahasiswa Reka %s:\n%s", year, bullets(studentNames(list))), ctx, true
	}
	return "", ctx, false
}

type projectFollowupRule struct{ f *Facts }

func (projectFollowupRule) Name() string { return "project_followup" }

func (r projectFollowupRule) Match(msg Message, ctx Context) (string, Context, bool) {
	p, ok := r.f.Project(ctx.Get(KeyLastProject))
	if !ok {
		return "", ctx, false
	}
	word := msg.Has(projectWords...) && projectPronoun(msg)
	for _, w := range projectWords {
		word = word || msg.Has(w+"nya")
	}
	if !word {
		return "", ctx, false
	}
	return projectDetail(p), ctx, true
}

type projectCategoryRule struct{ m *Matcher }

func (projectCategoryRule) Name() string { return "project_category" }

func (r projectCategoryRule) Match(msg Message, ctx Context) (string, Context, bool) {
	if !msg.Has(projectWords...) {
		return "", ctx, false
	}
	for _, p := range r.m.facts.Projects {
		category := r.m.Normalize(p.Kategori)
		if !msg.Phrase(category) {
			continue
		}
		var names []string
		for _, q := range r.m.facts.Projects {
			if r.m.Normalize(q.Kategori) == category {
				names = append(names, q.Nama)
			}
		}
		return fmt.Sprintf("Project %s:\n%s", p.Kategori, bullets(names)), ctx, true
	}
	return "", ctx, false
}

type skillSearchRule struct{ m *Matcher }

func (skillSearchRule) Name() string { return "skill_search" }

func (r skillSearchRule) Match(msg Message, ctx Context) (string, Context, bool) {
	asked := skillQuestion(msg)
	for _, cue := range skillCues {
		if cue.asked && !asked {
			continue
		}
		if !msg.AnyPhrase(cue.phrases...) {
			continue
		}
		var names []string
		for _, s := range r.m.facts.Students() {
			for _, skill := range s.Skills {
				if NewMessage(r.m.Normalize(skill)).AnyPhrase(cue.phrases...) {
					names = append(names, s.Nama)
					break
				}
			}
		}
		if len(names) == 0 {
			return fmt.Sprintf("Tidak ada mahasiswa dengan skill %s.", cue.label), ctx, true
		}
		return fmt.Sprintf("Mahasiswa dengan skill %s:\n%s", cue.label, bullets(names)), ctx, true
	}
	return "", ctx, false
}

type projectListRule struct{ f *Facts }

func (projectListRule) Name() string { return "project_list" }

func (r projectListRule) Match(msg Message, ctx Context) (string, Context, bool) {
	if !msg.Has(projectWords...) {
		return "", ctx, false
	}
	if len(r.f.Projects) == 0 {
		return "Tidak ada project saat ini.", ctx, true
	}
	names := make([]string, len(r.f.Projects))
	for i, p := range r.f.Projects {
		names[i] = p.Nama
	}
	return "Daftar project Lab PSTI:\n" + bullets(names), ctx, true
}

type labSupervisorsRule struct{ f *Facts }

func (labSupervisorsRule) Name() string { return "lab_supervisors" }

func (r labSupervisorsRule) Match(msg Message, ctx Context) (string, Context, bool) {
	if !msg.Has("pembina") && !msg.Phrase("dosen pembina") {
		return "", ctx, false
	}
	if len(r.f.Pembina) == 0 {
		return "Data pembina Lab PSTI belum tersedia.", ctx, true
	}
	lines := make([]string, len(r.f.Pembina))
	for i, p := range r.f.Pembina {
		lines[i] = p.Nama
		if p.Jabatan != "" {
			lines[i] += " (" + p.Jabatan + ")"
		}
	}
	return "Pembina Lab PSTI:\n" + bullets(lines), ctx, true
}

type labFacilitiesRule struct{ f *Facts }

func (labFacilitiesRule) Name() string { return "lab_facilities" }

func (r labFacilitiesRule) Match(msg Message, ctx Context) (string, Context, bool) {
	if !hasPrefix(msg, "fasilitas") || !msg.Has(labWords...) {
		return "", ctx, false
	}
	return fmt.Sprintf("Fasilitas %s:\n%s", r.f.Lab.Nama, bullets(r.f.Lab.Fasilitas)), ctx, true
}

type labHoursRule struct{ f *Facts }

func (labHoursRule) Name() string { return "lab_hours" }

func (r labHoursRule) Match(msg Message, ctx Context) (string, Context, bool) {
	if !(msg.Has("jam") && hasPrefix(msg, "buka")) && !hasPrefix(msg, "operasional") {
		return "", ctx, false
	}
	return fmt.Sprintf("%s buka %s.", r.f.Lab.Nama, strings.Join(r.f.Lab.Jam, ", ")), ctx, true
}

type labContactRule struct{ f *Facts }

func (labContactRule) Name() string { return "lab_contact" }

func (r labContactRule) Match(msg Message, ctx Context) (string, Context, bool) {
	if !hasPrefix(msg, "kontak", "hubungi") {
		return "", ctx, false
	}
	k := r.f.Lab.Kontak
	return fmt.Sprintf("Kontak %s: Email: %s | Telp: %s", r.f.Lab.Nama, k.Email, k.Telepon), ctx, true
}

type labLocationRule struct{ f *Facts }

func (labLocationRule) Name() string { return "lab_location" }

func (r labLocationRule) Match(msg Message, ctx Context) (string, Context, bool) {
	if !hasPrefix(msg, "lokasi", "alamat") {
		return "", ctx, false
	}
	return fmt.Sprintf("%s berada di %s.", r.f.Lab.Nama, r.f.Lab.Lokasi), ctx, true
}

type studentFollowupRule struct{ f *Facts }

func (studentFollowupRule) Name() string { return "student_followup" }

func (r studentFollowupRule) Match(msg Message, ctx Context) (string, Context, bool) {
	if !studentPronoun(msg) {
		return "", ctx, false
	}
	s, ok := r.f.Student(ctx.Get(KeyLastStudent))
	if !ok {
		return "", ctx, false
	}
	return profile(s, msg), ctx, true
}

type studentListRule struct{ f *Facts }

func (studentListRule) Name() string { return "student_list" }

func (r studentListRule) Match(msg Message, ctx Context) (string, Context, bool) {
	if !(msg.Has("siapa") && msg.Has("anggota")) && !msg.Has("mahasiswa") {
		return "", ctx, false
	}
	students := r.f.Students()
	if len(students) == 0 {
		return "Tidak ada data mahasiswa.", ctx, true
	}
	return "Berikut daftar mahasiswa Lab PSTI:\n" + bullets(studentNames(students)), ctx, true
}

// words after "siapa" that are questions about someone the classifier knows, not a lookup
var notPersonWords = map[string]bool{
	"kamu": true, "anda": true, "saya": true, "dia": true, "beliau": true, "itu": true, "ini": true,
	"kami": true, "kita": true, "mereka": true, "admin": true, "namamu": true, "aja": true, "saja": true,
}

type unknownPersonRule struct{ m *Matcher }

func (unknownPersonRule) Name() string { return "unknown_person" }

func (r unknownPersonRule) Match(msg Message, ctx Context) (string, Context, bool) {
	if len(msg.Tokens) != 2 || msg.Tokens[0] != "siapa" {
		return "", ctx, false
	}
	name := msg.Tokens[1]
	if notPersonWords[name] || r.m.IsKnownName(name) || !isLetters([]rune(name)) {
		return "", ctx, false
	}
	return fmt.Sprintf("Maaf, saya tidak menemukan data untuk \"%s\". Coba tulis nama lengkap atau nama panggilan mahasiswa Lab PSTI.", name), ctx, true
}
