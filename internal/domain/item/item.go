// Package item defines the shop catalogue entities.
// This package is PURE and must NOT import any infrastructure packages.
package item

import "strings"

// Category represents what kind of thing an item is.
type Category string

const (
	CategoryRole     Category = "role"
	CategoryCosmetic Category = "cosmetic"
	CategoryPet      Category = "pet"
	CategoryUtility  Category = "utility"
)

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryRole, CategoryCosmetic, CategoryPet, CategoryUtility:
		return true
	}
	return false
}

// Item is one shop listing.
type Item struct {
	Name        string   `json:"name"`
	Price       int64    `json:"price"`
	Category    Category `json:"category"`
	Description string   `json:"description"`
}

// Well-known item names.
const (
	VIPRole     = "VIP Role"
	CustomColor = "Custom Color"
	PetFood     = "Pet Food"
	PetToy      = "Pet Toy"
	PetHouse    = "Pet House"
	PetClothes  = "Pet Clothes"
)

var starter = []Item{
	{Name: VIPRole, Price: 1000, Category: CategoryRole, Description: "Get a special VIP role"},
	{Name: CustomColor, Price: 500, Category: CategoryCosmetic, Description: "Change your name color"},
	{Name: PetFood, Price: 50, Category: CategoryPet, Description: "Food for your pet"},
	{Name: PetToy, Price: 75, Category: CategoryPet, Description: "Toy to keep your pet happy"},
	{Name: PetHouse, Price: 200, Category: CategoryPet, Description: "A cozy house for your pet"},
	{Name: PetClothes, Price: 150, Category: CategoryPet, Description: "Stylish clothes for your pet"},
}

// Starter returns a fresh copy of the catalogue every new tenant begins with.
func Starter() []Item {
	return append([]Item(nil), starter...)
}

// happinessBonus holds the happiness effect of pet accessories.
var happinessBonus = map[string]int{
	PetToy:     10,
	PetClothes: 15,
	PetHouse:   20,
}

// HappinessBonus is the happiness an item grants when given to a pet.
func HappinessBonus(name string) int {
	return happinessBonus[name]
}

// ValidName reports whether name can be used as a catalogue key.
// Dots are reserved as path separators.
func ValidName(name string) bool {
	name = strings.TrimSpace(name)
	return name != "" && !strings.Contains(name, ".")
}
