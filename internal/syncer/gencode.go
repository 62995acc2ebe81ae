package syncer

import (
	"crypto/sha256"
	"encoding/hex"
)

// GenCode выводит стабильный code подразделения из полного пути
// ("公司/部门A/中心AA" — предки, соединённые "/"). Деривация обязана быть
// неизменной между релизами: смена формулы молча осиротит все ранее
// синхронизированные подразделения локальных источников.
func GenCode(fullPath string) string {
	sum := sha256.Sum256([]byte(fullPath))
	return hex.EncodeToString(sum[:])
}
