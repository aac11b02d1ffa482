package taxonomy

import "sort"

// labelIndexTable maps each semantic label of the built-in vocabulary to the
// model class indices that contribute to it. A label's merged score is the
// sum of the raw scores at its member indices, so related model classes
// reinforce each other.
var labelIndexTable = map[string][]int{
	// Human vocalizations
	"Speech":    {0, 1, 2, 3},
	"Shout":     {6, 7, 8, 9},
	"Screaming": {10, 11},
	"Laughter":  {16, 17, 18},
	"Baby Cry":  {19, 20, 21},
	"Crying":    {22, 23},
	"Snoring":   {38, 39},
	"Whistling": {40, 41},
	"Cough":     {42, 43},
	"Sneeze":    {44, 45},

	// Animals
	"Dog Bark":   {69, 70, 71},
	"Cat Meow":   {78, 79, 80},
	"Bird Chirp": {93, 94, 95},
	"Rooster":    {99, 100},

	// Music
	"Music":  {132, 133, 134, 135},
	"Guitar": {140, 141},
	"Piano":  {153, 154},

	// Vehicles
	"Vehicle Engine": {300, 301},
	"Car Horn":       {302, 303},
	"Car Alarm":      {304, 305},
	"Motorcycle":     {310, 311},
	"Train":          {324, 325},
	"Bicycle Bell":   {328},

	// Domestic
	"Doorbell":       {349, 350},
	"Door Knock":     {354, 355},
	"Door Slam":      {356, 357},
	"Kettle Whistle": {364, 365},
	"Microwave Beep": {366, 367},
	"Vacuum Cleaner": {372, 373},
	"Telephone Ring": {382, 383, 384},
	"Alarm Clock":    {388, 389},

	// Alarms and hazards
	"Siren":          {390, 391, 392, 393},
	"Fire Alarm":     {394, 395},
	"Smoke Detector": {396, 397},
	"Gunshot":        {421, 422, 423, 424, 425},
	"Explosion":      {426, 427},
	"Fireworks":      {428, 429},

	// Environment and impacts
	"Thunder":        {436, 437},
	"Rain":           {438, 439},
	"Wind":           {440, 441},
	"Water Running":  {442, 443, 444},
	"Glass Breaking": {462, 463, 464},
	"Hammering":      {466, 467},
}

// Labels returns the built-in vocabulary in stable sorted order.
func Labels() []string {
	labels := make([]string, 0, len(labelIndexTable))
	for label := range labelIndexTable {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

// IsKnownLabel reports whether the vocabulary contains the label.
func IsKnownLabel(label string) bool {
	_, ok := labelIndexTable[label]
	return ok
}

// MergeScores collapses a raw model score vector into per-label scores by
// summing each label's member indices. Indices beyond the vector length
// contribute nothing. Merged scores are not probabilities and may exceed 1.
func MergeScores(raw []float64) map[string]float64 {
	merged := make(map[string]float64, len(labelIndexTable))
	for label, indices := range labelIndexTable {
		var sum float64
		for _, idx := range indices {
			if idx >= 0 && idx < len(raw) {
				sum += raw[idx]
			}
		}
		merged[label] = sum
	}
	return merged
}
