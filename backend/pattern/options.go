package pattern

import "math/rand/v2"

// Options are the symbol sets shown to a user, one per category.
type Options struct {
	Phrases []string
	Images  []string
	Icons   []string
}

func (o Options) category(c Category) []string {
	switch c {
	case Phrase:
		return o.Phrases
	case Image:
		return o.Images
	case Icon:
		return o.Icons
	}
	return nil
}

var (
	defaultPhrases = []string{"🔴", "🟠", "🟡", "🟢", "🔵", "🟣", "⚪", "⚫", "🟤", "🟥", "🟧", "🟨"}
	defaultImages  = []string{"⭐", "🔶", "🔷", "🔺", "🔻", "⬛", "⬜", "🔘", "🔵", "⚾", "🎯", "❤️"}
	defaultIcons   = []string{
		"🏠", "🚗", "⚽", "🍎", "💻", "📱", "🎵", "🎬", "🔒", "⏰", "🎁", "🔑",
		"💡", "📷", "🌞", "🐶", "🐱", "🌺", "🏔️", "🌊", "✈️", "🚢", "🌍", "🍕",
	}
)

// DefaultOptions returns a fresh copy of the unshuffled option sets.
func DefaultOptions() Options {
	return Options{
		Phrases: append([]string(nil), defaultPhrases...),
		Images:  append([]string(nil), defaultImages...),
		Icons:   append([]string(nil), defaultIcons...),
	}
}

// Shuffled returns the default sets, each independently shuffled.
// A nil r uses the global source.
func Shuffled(r *rand.Rand) Options {
	o := DefaultOptions()
	for _, set := range [][]string{o.Phrases, o.Images, o.Icons} {
		swap := func(i, j int) { set[i], set[j] = set[j], set[i] }
		if r != nil {
			r.Shuffle(len(set), swap)
		} else {
			rand.Shuffle(len(set), swap)
		}
	}
	return o
}
