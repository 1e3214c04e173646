package storefront

var demoCatalog = []Product{
	{ID: "gala-apples", Name: "Gala Apples", Description: "Crisp local apples", Category: "produce", PriceCents: 349, Unit: "1kg bag", Stock: 40},
	{ID: "bananas", Name: "Bananas", Description: "Fairtrade bananas", Category: "produce", PriceCents: 129, Unit: "bunch", Stock: 60},
	{ID: "baby-spinach", Name: "Baby Spinach", Description: "Washed and ready to eat", Category: "produce", PriceCents: 249, Unit: "200g", Stock: 25},
	{ID: "whole-milk", Name: "Whole Milk", Description: "Fresh farm milk", Category: "dairy", PriceCents: 189, Unit: "2L", Stock: 30},
	{ID: "cheddar", Name: "Aged Cheddar", Description: "12 month aged cheddar", Category: "dairy", PriceCents: 599, Unit: "400g", Stock: 15},
	{ID: "free-range-eggs", Name: "Free Range Eggs", Description: "Dozen large eggs", Category: "dairy", PriceCents: 459, Unit: "12 pack", Stock: 20},
	{ID: "sourdough", Name: "Sourdough Loaf", Description: "Baked this morning", Category: "bakery", PriceCents: 529, Unit: "loaf", Stock: 12},
	{ID: "rolled-oats", Name: "Rolled Oats", Description: "Wholegrain oats", Category: "pantry", PriceCents: 299, Unit: "1kg", Stock: 35},
	{ID: "olive-oil", Name: "Extra Virgin Olive Oil", Description: "Cold pressed", Category: "pantry", PriceCents: 1099, Unit: "750ml", Stock: 18},
}
