package database

import (
	"Orbit/config"
	"Orbit/models"
	"Orbit/pkg/log"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB 初始化数据库连接
func NewDB(conf *config.Config) *gorm.DB {
	level := logger.Warn
	if conf.Debug() {
		level = logger.Info
	}
	db, err := gorm.Open(mysql.Open(conf.MySQL.Dsn()), &gorm.Config{
		Logger:         logger.Default.LogMode(level),
		TranslateError: true,
	})
	if err != nil {
		log.L.Fatal("failed to connect database", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.L.Fatal("failed to get sql db", zap.Error(err))
	}
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	log.L.Info("connect database success")
	return db
}

// Migrate 建表或补齐字段
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Users{},
		&models.UserBinding{},
		&models.Organization{},
		&models.Tag{},
		&models.PointSource{},
		&models.PointTransaction{},
		&models.TransactionSource{},
		&models.WithdrawalContract{},
		&models.WithdrawalRequest{},
		&models.PointAllocation{},
		&models.PendingPointGrant{},
	)
}
