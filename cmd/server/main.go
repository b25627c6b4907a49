// cmd/server/main.go
package main

import (
	"fmt"
	"log"

	"github.com/Corphon/EpubTranslator/internal/app"
	"github.com/Corphon/EpubTranslator/internal/config"
	"github.com/Corphon/EpubTranslator/internal/di"
	"github.com/gin-gonic/gin"
)

func main() {
	log.Println("🚀 启动 EpubTranslator 服务器...")

	// 1. 加载基础配置
	baseConfig, err := config.Load()
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	log.Printf("✅ 基础配置加载完成，端口: %s", baseConfig.Port)

	if !baseConfig.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	// 2. 创建目录、初始化配置、日志、服务和路由
	if err := app.Initialize(baseConfig); err != nil {
		log.Fatalf("❌ 初始化应用失败: %v", err)
	}
	log.Printf("✅ 所有服务初始化完成，数据库: %s", app.DatabasePath())

	// 3. 健康检查
	if err := performHealthCheck(); err != nil {
		log.Printf("⚠️ 服务健康检查警告: %v", err)
	}

	// 4. 启动服务器
	log.Printf("🌐 服务器启动在端口 %s", baseConfig.Port)
	log.Printf("🔗 访问地址: http://localhost:%s", baseConfig.Port)
	log.Printf("🔗 设置页面: http://localhost:%s/settings", baseConfig.Port)

	if err := app.Run(); err != nil {
		log.Fatalf("❌ %v", err)
	}
}

// performHealthCheck 检查关键服务是否已注册
func performHealthCheck() error {
	container := di.GetContainer()
	criticalServices := []string{"store", "book", "translation", "config", "export"}

	for _, serviceName := range criticalServices {
		if !container.Has(serviceName) {
			return fmt.Errorf("关键服务未注册: %s", serviceName)
		}
	}

	log.Println("✅ 服务健康检查通过")
	return nil
}
