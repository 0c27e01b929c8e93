package protocol

import (
	"math/rand/v2"
	"strings"
)

var adjectives = []string{
	"tiny", "happy", "sleepy", "fluffy", "sparkly", "cheery", "silly", "jolly", "cozy", "shiny",
	"golden", "silver", "crimson", "emerald", "purple", "bright", "gentle", "brave", "calm", "swift",
}

var animals = []string{
	"kitten", "puppy", "bunny", "panda", "koala", "fox", "otter", "hedgehog", "squirrel", "hamster",
	"penguin", "flamingo", "pelican", "sparrow", "robin", "toucan", "parrot", "dolphin", "whale", "narwhal",
}

var dishes = []string{
	"pancake", "waffle", "sushi", "ramen", "curry", "taco", "burrito", "biryani", "paella", "risotto",
	"lasagna", "pizza", "dumpling", "noodle", "omelette", "kebab", "falafel", "samosa", "gnocchi", "dimsum",
}

// NewRoomID returns a memorable room id such as "FLUFFY-OTTER-RAMEN". It is
// already normalized.
func NewRoomID() string {
	words := []string{
		adjectives[rand.IntN(len(adjectives))],
		animals[rand.IntN(len(animals))],
		dishes[rand.IntN(len(dishes))],
	}
	return strings.ToUpper(strings.Join(words, "-"))
}
