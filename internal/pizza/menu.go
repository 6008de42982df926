package pizza

// DefaultMenu is the menu a fresh deployment starts with.
func DefaultMenu() []MenuItem {
	return []MenuItem{
		{Title: "Veggie", Description: "A garden of delight", Image: "pizza1.png", Price: 0.0038},
		{Title: "Pepperoni", Description: "Spicy treat", Image: "pizza2.png", Price: 0.0042},
		{Title: "Margarita", Description: "Essential classic", Image: "pizza3.png", Price: 0.0042},
		{Title: "Crusty", Description: "A dry mouthed favorite", Image: "pizza4.png", Price: 0.0028},
		{Title: "Charred Leopard", Description: "For those with a darker side", Image: "pizza5.png", Price: 0.0099},
	}
}
