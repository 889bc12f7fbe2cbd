package catalog

// MockInventory returns the demo clothing inventory the deployment
// ships with. SKUs double as scannable barcodes on the sales screen.
func MockInventory() []Item {
	return []Item{
		{ID: "1", SKU: "CT001", Name: "Cotton T-Shirt", Description: "Comfortable cotton t-shirt", Price: 299900, Stock: 45, LowStockThreshold: 10},
		{ID: "2", SKU: "DJ002", Name: "Denim Jeans", Description: "Classic blue denim jeans", Price: 799900, Stock: 23, LowStockThreshold: 15},
		{ID: "3", SKU: "SD003", Name: "Summer Dress", Description: "Light summer dress", Price: 599900, Stock: 12, LowStockThreshold: 5},
		{ID: "4", SKU: "LJ004", Name: "Leather Jacket", Description: "Premium leather jacket", Price: 1999900, Stock: 3, LowStockThreshold: 5},
		{ID: "5", SKU: "PS005", Name: "Polo Shirt", Description: "Slim fit polo shirt", Price: 399900, Stock: 67, LowStockThreshold: 20},
		{ID: "6", SKU: "CS006", Name: "Casual Shorts", Description: "Everyday casual shorts", Price: 249900, Stock: 2, LowStockThreshold: 8},
		{ID: "7", SKU: "WC007", Name: "Winter Coat", Description: "Insulated winter coat", Price: 1299900, Stock: 15, LowStockThreshold: 5},
		{ID: "8", SKU: "SN008", Name: "Sneakers", Description: "Low-top canvas sneakers", Price: 899900, Stock: 1, LowStockThreshold: 3},
	}
}
