package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/onestopshop/shop-backend/internal/catalog"
)

func registerProductRoutes(api *gin.RouterGroup, cat *catalog.Catalog) {
	api.GET("/products", func(c *gin.Context) {
		products := cat.All()
		c.JSON(http.StatusOK, gin.H{
			"success":  true,
			"products": products,
			"count":    len(products),
		})
	})

	api.GET("/products/:id", func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid product id"})
			return
		}
		p, ok := cat.Find(id)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Product not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "product": p})
	})
}
