package catalog

// AnimalNames is the class table of the bundled animal model.
var AnimalNames = map[int]string{
	0: "Dog", 1: "Cat", 2: "Zebra", 3: "Lion", 4: "Leopard",
	5: "Cheetah", 6: "Tiger", 7: "Bear", 8: "Brown Bear", 9: "Butterfly",
	10: "Canary", 11: "Crocodile", 12: "Polar Bear", 13: "Bull", 14: "Camel",
	15: "Crab", 16: "Chicken", 17: "Centipede", 18: "Cattle", 19: "Caterpillar", 20: "Duck",
}

// CarnivorousAnimals are highlighted and counted by the annotator.
var CarnivorousAnimals = []string{
	"Lion", "Leopard", "Cheetah", "Tiger", "Bear", "Brown Bear",
	"Polar Bear", "Crocodile", "Cat",
}

// Default returns the built-in animal catalog.
func Default() *Catalog {
	return New(AnimalNames, CarnivorousAnimals)
}
