package nlp

// slangDictionary maps informal Indonesian chat spellings to the canonical words used in training data.
// Values never contain a key of this map, so a second expansion pass is a no-op.
var slangDictionary = map[string]string{
	// greetings & address
	"hai":  "halo",
	"hei":  "halo",
	"hi":   "halo",
	"hey":  "halo",
	"gan":  "teman",
	"sis":  "saudara",
	"bro":  "saudara",
	"min":  "admin",
	"kak":  "kakak",
	"bang": "abang",

	// question words
	"gmn":    "bagaimana",
	"gimana": "bagaimana",
	"gmana":  "bagaimana",
	"knp":    "kenapa",
	"knapa":  "kenapa",
	"klo":    "kalau",
	"kalo":   "kalau",
	"dmn":    "dimana",
	"kpn":    "kapan",
	"ttg":    "tentang",

	// negation & aspect
	"gak":   "tidak",
	"ga":    "tidak",
	"gk":    "tidak",
	"ngga":  "tidak",
	"nggak": "tidak",
	"udah":  "sudah",
	"udh":   "sudah",
	"blm":   "belum",
	"blom":  "belum",
	"emang": "memang",
	"emg":   "memang",

	// common abbreviations
	"yg":    "yang",
	"org":   "orang",
	"brp":   "berapa",
	"brapa": "berapa",
	"mau":   "ingin",
	"mo":    "ingin",
	"tau":   "tahu",
	"bs":    "bisa",
	"dgn":   "dengan",
	"utk":   "untuk",
	"jg":    "juga",
	"tp":    "tapi",
	"sy":    "saya",
	"aku":   "saya",

	// pronouns
	"gue":  "saya",
	"gw":   "saya",
	"ane":  "saya",
	"ente": "anda",
	"lo":   "kamu",
	"lu":   "kamu",

	// lab & campus
	"lab":     "laboratorium",
	"fak":     "fakultas",
	"univ":    "universitas",
	"kampus":  "universitas",
	"mhs":     "mahasiswa",
	"maba":    "mahasiswa baru",
	"skripsi": "tugas akhir",

	// time
	"skrg":   "sekarang",
	"skrang": "sekarang",
	"bsk":    "besok",

	// thanks & farewell
	"terimakasih": "terima kasih",
	"makasi":      "terima kasih",
	"makasih":     "terima kasih",
	"thx":         "terima kasih",
	"thanks":      "terima kasih",
	"bye":         "sampai jumpa",
	"dadah":       "sampai jumpa",
}

// StopWordList selects one of the fixed stop word lists.
type StopWordList string

const (
	StopWordsMinimal  StopWordList = "minimal"
	StopWordsExtended StopWordList = "extended"
)

var minimalStopWords = []string{
	"yang", "dan", "di", "dari", "ke", "pada", "untuk",
	"dengan", "adalah", "ini", "itu", "atau", "juga",
	"akan", "telah", "sudah", "ada", "bisa", "dapat",
}

// chat particles that carry no intent signal
var particleStopWords = []string{
	"nya", "aja", "dong", "sih", "kok", "lah", "tuh", "deh", "ya", "yah", "kah", "apa",
}

func stopWordSet(list StopWordList) map[string]struct{} {
	words := minimalStopWords
	if list == StopWordsExtended {
		words = append(append([]string{}, minimalStopWords...), particleStopWords...)
	}
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}
