// Package quote serves the built-in fortune list.
package quote

import "math/rand"

// quotes is the built-in list, one per line.
var quotes = []string{
	"Simplicity is prerequisite for reliability. — Edsger Dijkstra",
	"Premature optimization is the root of all evil. — Donald Knuth",
	"Programs must be written for people to read. — Harold Abelson",
	"Talk is cheap. Show me the code. — Linus Torvalds",
	"The best way to predict the future is to invent it. — Alan Kay",
	"Deleted code is debugged code. — Jeff Sickel",
	"First, solve the problem. Then, write the code. — John Johnson",
	"Make it work, make it right, make it fast. — Kent Beck",
	"A language that doesn't affect the way you think about programming is not worth knowing. — Alan Perlis",
	"Controlling complexity is the essence of computer programming. — Brian Kernighan",
}

// Random returns a random quote from the built-in list.
func Random() string {
	return quotes[rand.Intn(len(quotes))]
}

// All returns the full list, for display or testing.
func All() []string {
	out := make([]string, len(quotes))
	copy(out, quotes)
	return out
}
